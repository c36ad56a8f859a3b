package actions

import "github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"

// BusDialogs forwards errors to App.ShowError and answers every question
// through Answer. With no Answer every question is cancelled, which suits
// headless runs.
type BusDialogs struct {
	Bus    *signals.Bus
	Answer func(title, prompt string) (string, bool)
}

func (d *BusDialogs) ShowError(title, msg string) {
	d.Bus.App().ShowError.Emit(signals.ErrorDialog{Title: title, Message: msg})
}

func (d *BusDialogs) AskText(title, prompt, initial string) (string, bool) {
	if d.Answer == nil {
		return "", false
	}
	s, ok := d.Answer(title, prompt)
	if ok && s == "" {
		s = initial
	}
	return s, ok
}

func (d *BusDialogs) AskConfirm(title, question string) bool {
	if d.Answer == nil {
		return false
	}
	_, ok := d.Answer(title, question)
	return ok
}

func (d *BusDialogs) AskChoice(title, prompt string, options []string) (string, bool) {
	if d.Answer == nil || len(options) == 0 {
		return "", false
	}
	s, ok := d.Answer(title, prompt)
	if !ok {
		return "", false
	}
	for _, o := range options {
		if o == s {
			return s, true
		}
	}
	return options[0], true
}
