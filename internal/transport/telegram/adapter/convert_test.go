package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"

	"github.com/stretchr/testify/require"
)

func TestToMessageMedia(t *testing.T) {
	t.Parallel()
	chat := &tele.Chat{ID: 10, Type: tele.ChatPrivate}
	from := &tele.User{ID: 5, FirstName: "Ana", LastName: "Putri", Username: "ana"}

	cases := []struct {
		name  string
		msg   *tele.Message
		kind  string
		media kit.MediaKind
	}{
		{"text", &tele.Message{Text: "hi"}, "text", ""},
		{"photo", &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "p"}}, Caption: "c"}, "photo", kit.MediaPhoto},
		{"video", &tele.Message{Video: &tele.Video{File: tele.File{FileID: "v"}}}, "video", kit.MediaVideo},
		{"video note", &tele.Message{VideoNote: &tele.VideoNote{File: tele.File{FileID: "n"}}}, "video_note", kit.MediaVideoNote},
		{"document", &tele.Message{Document: &tele.Document{File: tele.File{FileID: "d"}}}, "document", kit.MediaDocument},
		{"audio", &tele.Message{Audio: &tele.Audio{File: tele.File{FileID: "a"}}}, "audio", kit.MediaAudio},
		{"animation", &tele.Message{Animation: &tele.Animation{File: tele.File{FileID: "g"}}, Document: &tele.Document{File: tele.File{FileID: "g"}}}, "animation", ""},
		{"sticker", &tele.Message{Sticker: &tele.Sticker{File: tele.File{FileID: "s"}}}, "sticker", ""},
		{"voice", &tele.Message{Voice: &tele.Voice{File: tele.File{FileID: "o"}}}, "voice", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.msg.ID = 3
			tc.msg.Chat = chat
			tc.msg.Sender = from
			got := toMessage(tc.msg)
			require.Equal(t, tc.kind, got.Kind)
			require.Equal(t, int64(10), got.ChatID)
			require.Equal(t, int64(5), got.FromID)
			require.Equal(t, "Ana Putri", got.FromName)
			require.False(t, got.IsGroup)
			if tc.media == "" {
				require.Nil(t, got.Media)
				return
			}
			require.NotNil(t, got.Media)
			require.Equal(t, tc.media, got.Media.Kind)
			require.NotEmpty(t, got.Media.FileID)
		})
	}
}

func TestEntitiesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []kit.Entity{
		{Type: "bold", Offset: 0, Length: 4},
		{Type: "text_link", Offset: 5, Length: 3, URL: "https://example.org"},
		{Type: "text_mention", Offset: 9, Length: 2, UserID: 77},
	}
	require.Equal(t, in, fromTeleEntities(toTeleEntities(in)))
	require.Nil(t, toTeleEntities(nil))
}

func TestMediaSendable(t *testing.T) {
	t.Parallel()
	v, err := mediaSendable(kit.Media{Kind: kit.MediaPhoto, FileID: "x"}, "cap")
	require.NoError(t, err)
	require.Equal(t, "cap", v.(*tele.Photo).Caption)

	_, err = mediaSendable(kit.Media{Kind: kit.MediaVideoNote, FileID: "x"}, "ignored")
	require.NoError(t, err)

	_, err = mediaSendable(kit.Media{Kind: "sticker", FileID: "x"}, "")
	require.Error(t, err)
	_, err = mediaSendable(kit.Media{Kind: kit.MediaPhoto}, "")
	require.Error(t, err)
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"short"}, splitTelegramText("short", 10, ""))

	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	require.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, splitTelegramText(long, 10, ""))

	html := "abcdefgh<b>bold</b>"
	parts := splitTelegramText(html, 10, "HTML")
	require.Equal(t, []string{"abcdefgh", "<b>bold", "</b>"}, parts)
	require.Equal(t, html, strings.Join(parts, ""))
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	got := menuCommands([]kit.BotCommand{
		{Command: "/broadcast", Description: "Compose"},
		{Command: " "},
		{Command: "schedules"},
	})
	require.Equal(t, []tele.Command{
		{Text: "broadcast", Description: "Compose"},
		{Text: "schedules", Description: "schedules"},
	}, got)
}
