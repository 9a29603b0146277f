package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xerolinux/xero-toolkit/internal/executor"
)

// dispatchMsg carries one loop task into Update. ran is closed once the task
// has executed.
type dispatchMsg struct {
	fn  func()
	ran chan struct{}
}

// RunProgram hosts loop inside a bubbletea program: every loop task executes
// in the model's Update, so the executor and the view share one goroutine.
//
// Once the program exits, remaining tasks run on the forwarding goroutine
// until ctx is done. That lets a dismissed run finish its bookkeeping.
func RunProgram(ctx context.Context, loop *executor.Loop, model tea.Model, opts ...tea.ProgramOption) (tea.Model, error) {
	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	finished := make(chan struct{})

	go loop.Drain(ctx, func(fn func()) {
		msg := dispatchMsg{fn: fn, ran: make(chan struct{})}
		p.Send(msg)

		select {
		case <-msg.ran:
		case <-finished:
			// The program is gone; Update can no longer run the task.
			select {
			case <-msg.ran:
			default:
				fn()
			}
		}
	})

	final, err := p.Run()
	close(finished)
	return final, err
}
