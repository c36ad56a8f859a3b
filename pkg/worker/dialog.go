package worker

import "github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"

// ProgressDialog is the presentation state of a modal progress window bound
// to one worker. Value is -1 while the progress is indeterminate.
type ProgressDialog struct {
	Title      string
	Label      string
	Value      int
	Cancelable bool
	Visible    bool

	// Changed fires after every status applied to the dialog.
	Changed *signals.Signal[ProgressDialog]

	conn *signals.Connection
}

// NewProgressDialog returns a hidden, indeterminate dialog. Long imports are
// not cancelable.
func NewProgressDialog(title string, cancelable bool) *ProgressDialog {
	return &ProgressDialog{
		Title:      title,
		Value:      -1,
		Cancelable: cancelable,
		Changed:    signals.New[ProgressDialog]("progress_dialog.changed"),
	}
}

// Track shows the dialog and follows w's status until it completes.
func (d *ProgressDialog) Track(w *Worker) {
	d.Untrack()
	d.Visible = true
	d.conn = w.Status.Connect(d.Apply)
}

// Untrack stops following the current worker.
func (d *ProgressDialog) Untrack() {
	d.conn.Disconnect()
	d.conn = nil
}

// Apply updates the dialog from s. The final status hides it.
func (d *ProgressDialog) Apply(s Status) {
	if s == Complete {
		d.Value = 100
		d.Visible = false
		d.Untrack()
	} else {
		d.Value = s.Percent
		if s.Label != "" {
			d.Label = s.Label
		}
	}
	d.Changed.Emit(*d)
}

// Indeterminate reports whether the dialog shows a busy indicator.
func (d *ProgressDialog) Indeterminate() bool { return d.Value < 0 }
