package router

import (
	"strings"

	"castbot/pkg/tgui"
)

// helpMessage lists the commands the caller may run. Admin commands are
// shown only to admins.
func (m *CommandManager) helpMessage(admin bool) tgui.Message {
	b := tgui.New().Title("📚", "Commands")
	var adminRows []tgui.H
	for _, c := range m.commands() {
		if c.Access == AccessAdmin && !admin {
			continue
		}
		row := helpRow(c)
		if c.Access == AccessAdmin {
			adminRows = append(adminRows, row)
			continue
		}
		b.RawLine(row)
	}
	if len(adminRows) > 0 {
		b.Blank().RawLine(tgui.B("Admin"))
		for _, r := range adminRows {
			b.RawLine(r)
		}
	}
	return b.Build()
}

func helpRow(c Command) tgui.H {
	usage := strings.TrimSpace(c.Usage)
	if usage == "" {
		usage = "/" + c.Name
	}
	parts := []tgui.H{tgui.Raw("• "), tgui.Code(usage)}
	if d := strings.TrimSpace(c.Description); d != "" {
		parts = append(parts, tgui.Esc(" - "+d))
	}
	return tgui.JoinH("", parts...)
}
