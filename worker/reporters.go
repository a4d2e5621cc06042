package worker

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// forwardingReporter sends suite and spec events to the coordinator with ids made
// unique across workers. Run level events are not forwarded; the coordinator
// reports one run for all workers.
type forwardingReporter struct {
	types.NopReporter
	w *Worker
}

func (f *forwardingReporter) globalID(id string) string {
	return fmt.Sprintf("%d-%s", f.w.id, id)
}

func (f *forwardingReporter) SuiteStarted(s *types.SuiteResult) {
	f.forwardSuite(protocol.EventSuiteStarted, s)
}

func (f *forwardingReporter) SuiteDone(s *types.SuiteResult) {
	f.forwardSuite(protocol.EventSuiteDone, s)
}

func (f *forwardingReporter) SpecStarted(s *types.SpecResult) {
	f.forwardSpec(protocol.EventSpecStarted, s)
}

func (f *forwardingReporter) SpecDone(s *types.SpecResult) {
	f.forwardSpec(protocol.EventSpecDone, s)
}

func (f *forwardingReporter) forwardSuite(name protocol.EventName, s *types.SuiteResult) {
	c := *s
	c.ID = f.globalID(s.ID)
	f.forward(name, &c)
}

func (f *forwardingReporter) forwardSpec(name protocol.EventName, s *types.SpecResult) {
	c := *s
	c.ID = f.globalID(s.ID)
	f.forward(name, &c)
}

func (f *forwardingReporter) forward(name protocol.EventName, payload any) {
	m, err := protocol.ReporterEvent(name, payload)
	if err != nil {
		f.w.log.Error("Failed to forward reporter event", "event", name, "err", err)
		return
	}
	f.w.out.send(m)
}

// doneCapture keeps the last RunDone of the current spec file.
type doneCapture struct {
	types.NopReporter
	done *types.RunDoneEvent
}

func (d *doneCapture) RunDone(e *types.RunDoneEvent) {
	d.done = e
}

func (d *doneCapture) take() *types.RunDoneEvent {
	e := d.done
	d.done = nil
	return e
}
