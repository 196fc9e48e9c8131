package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. Unique and Data are packed into callback
// data as "\f<unique>|<data>".
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// InlineButtonsRows lays buttons out row by row, skipping empty rows. It
// returns nil when there is nothing to show.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
