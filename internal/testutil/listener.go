package testutil

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3transfer/s3types"
)

// RecordingListener records every event, progress value and data transfer
// status it receives. It is safe for concurrent use.
type RecordingListener struct {
	mu       sync.Mutex
	events   []s3types.Event
	progress []float64
	statuses []s3types.DataTransferStatus

	// OnEventHook, when set, runs after an event is recorded
	OnEventHook func(s3types.Event)
}

// OnEvent implements s3types.Listener.
func (l *RecordingListener) OnEvent(event s3types.Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	hook := l.OnEventHook
	l.mu.Unlock()

	if hook != nil {
		hook(event)
	}
}

// OnProgress implements s3types.ProgressListener.
func (l *RecordingListener) OnProgress(percent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, percent)
}

// OnDataTransfer implements s3types.DataTransferListener.
func (l *RecordingListener) OnDataTransfer(status s3types.DataTransferStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
}

// Events returns a copy of the recorded events.
func (l *RecordingListener) Events() []s3types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]s3types.Event(nil), l.events...)
}

// Types returns the recorded event types in order.
func (l *RecordingListener) Types() []s3types.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]s3types.EventType, 0, len(l.events))
	for _, e := range l.events {
		types = append(types, e.Type)
	}
	return types
}

// Count returns how many events of type t were recorded.
func (l *RecordingListener) Count(t s3types.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Progress returns a copy of the recorded progress values.
func (l *RecordingListener) Progress() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.progress...)
}

// Statuses returns a copy of the recorded data transfer statuses.
func (l *RecordingListener) Statuses() []s3types.DataTransferStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]s3types.DataTransferStatus(nil), l.statuses...)
}

// PanickingListener panics on every callback.
type PanickingListener struct{}

// OnEvent implements s3types.Listener.
func (PanickingListener) OnEvent(s3types.Event) { panic("listener failure") }

// OnProgress implements s3types.ProgressListener.
func (PanickingListener) OnProgress(float64) { panic("progress failure") }
