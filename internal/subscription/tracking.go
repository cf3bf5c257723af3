package subscription

import (
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned when tracking is started on a closed store.
var ErrClosed = errors.New("subscription store closed")

// InitialETA is the estimate shown while the order is being prepared.
const InitialETA = "25 mins"

type deliveryStep struct {
	after  time.Duration
	status DeliveryStatus
	eta    string
}

// Offsets are measured from the start of the session.
var deliverySteps = []deliveryStep{
	{after: 5 * time.Second, status: StatusOutForDelivery, eta: "15 mins"},
	{after: 15 * time.Second, status: StatusArrivingSoon, eta: "5 mins"},
	{after: 25 * time.Second, status: StatusDelivered, eta: "0 mins"},
}

// CurrentDelivery returns the active tracking record, or nil.
func (s *Store) CurrentDelivery() *DeliveryTracking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.delivery == nil {
		return nil
	}
	d := *s.delivery
	return &d
}

// StartDeliveryTracking begins a simulated delivery for orderID, replacing any
// session in progress. Advances of a replaced session never apply.
func (s *Store) StartDeliveryTracking(orderID string) (DeliveryTracking, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return DeliveryTracking{}, invalid("orderId", "must not be empty")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return DeliveryTracking{}, ErrClosed
	}
	s.stopTimersLocked()
	s.epoch++
	epoch := s.epoch

	s.delivery = &DeliveryTracking{
		OrderID:             orderID,
		Status:              StatusPreparing,
		DeliveryPersonName:  DemoCourierName,
		DeliveryPersonPhone: DemoCourierPhone,
		EstimatedTime:       InitialETA,
		CurrentLocation:     demoCourierLocation,
	}
	for _, step := range deliverySteps {
		t := s.sched.AfterFunc(step.after, func() {
			s.advance(epoch, orderID, step)
		})
		s.timers = append(s.timers, t)
	}
	snapshot := *s.delivery
	s.mu.Unlock()

	s.logger.Info("delivery tracking started", "order_id", orderID)
	s.notify(epoch, snapshot)
	return snapshot, nil
}

func (s *Store) advance(epoch uint64, orderID string, step deliveryStep) {
	s.mu.Lock()
	if s.epoch != epoch || s.delivery == nil || s.delivery.OrderID != orderID {
		s.mu.Unlock()
		return
	}
	current := s.delivery.Status
	if step.status.rank() != current.rank()+1 {
		s.mu.Unlock()
		s.logger.Warn("ignoring out-of-order delivery advance",
			"order_id", orderID, "from", current, "to", step.status)
		return
	}
	s.delivery.Status = step.status
	s.delivery.EstimatedTime = step.eta
	snapshot := *s.delivery
	if step.status.Terminal() {
		s.timers = nil
	}
	s.mu.Unlock()

	s.logger.Info("delivery status advanced", "order_id", orderID, "status", step.status)
	s.notify(epoch, snapshot)
}

func (s *Store) stopTimersLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// notify delivers d to listeners unless a newer session has started since
// d was taken.
func (s *Store) notify(epoch uint64, d DeliveryTracking) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	current := s.epoch
	s.mu.RUnlock()
	if current != epoch {
		s.logger.Debug("dropping superseded delivery update", "order_id", d.OrderID, "status", d.Status)
		return
	}
	for _, fn := range s.listeners {
		fn(d)
	}
}
