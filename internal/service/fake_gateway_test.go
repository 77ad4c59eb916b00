package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	util.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type recordedCall struct {
	Resource  string
	Operation string
	Args      []any
	Kwargs    map[string]any
}

// callHandler sees args and kwargs after a JSON round trip, as the backend would.
// A nil result is reported as an empty result.
type callHandler func(args []any, kwargs map[string]any) (any, error)

type fakeGateway struct {
	mu       sync.Mutex
	handlers map[string]callHandler
	calls    []recordedCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: map[string]callHandler{}}
}

func (g *fakeGateway) on(resource, operation string, h callHandler) {
	g.handlers[resource+"."+operation] = h
}

func (g *fakeGateway) reply(resource, operation string, result any) {
	g.on(resource, operation, func([]any, map[string]any) (any, error) { return result, nil })
}

func (g *fakeGateway) fail(resource, operation string, err error) {
	g.on(resource, operation, func([]any, map[string]any) (any, error) { return nil, err })
}

func (g *fakeGateway) Call(ctx context.Context, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := recordedCall{Resource: resource, Operation: operation}
	if err := roundTrip(args, &call.Args); err != nil {
		return nil, err
	}
	if err := roundTrip(kwargs, &call.Kwargs); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.calls = append(g.calls, call)
	h, ok := g.handlers[resource+"."+operation]
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected call %s.%s", resource, operation)
	}

	result, err := h(call.Args, call.Kwargs)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &erp.RemoteCallError{Resource: resource, Operation: operation, Cause: erp.ErrEmptyResult}
	}
	return json.Marshal(result)
}

func (g *fakeGateway) callsTo(resource, operation string) []recordedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []recordedCall
	for _, c := range g.calls {
		if c.Resource == resource && c.Operation == operation {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func roundTrip(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// domainValue returns the value of the first search term whose field matches.
func domainValue(args []any, field string) any {
	if len(args) == 0 {
		return nil
	}
	terms, _ := args[0].([]any)
	for _, t := range terms {
		term, _ := t.([]any)
		if len(term) == 3 && term[0] == field {
			return term[2]
		}
	}
	return nil
}

// firstID returns the first record id of a read/action call.
func firstID(args []any) int64 {
	ids, _ := args[0].([]any)
	if len(ids) == 0 {
		return 0
	}
	return int64(ids[0].(float64))
}

// memoryERP keeps partners and loyalty cards so repeated calls observe earlier writes.
type memoryERP struct {
	mu       sync.Mutex
	nextID   int64
	partners map[string]int64
	cards    map[[2]int64]*memoryCard
	created  map[string]int
}

type memoryCard struct {
	ID     int64
	Points float64
}

func newMemoryERP(g *fakeGateway) *memoryERP {
	m := &memoryERP{
		nextID:   100,
		partners: map[string]int64{},
		cards:    map[[2]int64]*memoryCard{},
		created:  map[string]int{},
	}

	g.on(erp.ResourcePartner, erp.OpSearchRead, func(args []any, _ map[string]any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		email, _ := domainValue(args, "email").(string)
		if id, ok := m.partners[email]; ok {
			return []map[string]any{{"id": id}}, nil
		}
		return []any{}, nil
	})
	g.on(erp.ResourcePartner, erp.OpCreate, func(args []any, _ map[string]any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		values := args[0].(map[string]any)
		m.nextID++
		m.partners[values["email"].(string)] = m.nextID
		m.created[erp.ResourcePartner]++
		return m.nextID, nil
	})
	g.on(erp.ResourceLoyaltyCard, erp.OpSearchRead, func(args []any, _ map[string]any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		key := [2]int64{int64(domainValue(args, "partner_id").(float64)), int64(domainValue(args, "program_id").(float64))}
		if card, ok := m.cards[key]; ok {
			return []map[string]any{{"id": card.ID, "points": card.Points}}, nil
		}
		return []any{}, nil
	})
	g.on(erp.ResourceLoyaltyCard, erp.OpCreate, func(args []any, _ map[string]any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		values := args[0].(map[string]any)
		key := [2]int64{int64(values["partner_id"].(float64)), int64(values["program_id"].(float64))}
		m.nextID++
		m.cards[key] = &memoryCard{ID: m.nextID, Points: values["points"].(float64)}
		m.created[erp.ResourceLoyaltyCard]++
		return []int64{m.nextID}, nil
	})
	g.on(erp.ResourceLoyaltyCard, erp.OpWrite, func(args []any, _ map[string]any) (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		id := firstID(args)
		values := args[1].(map[string]any)
		for _, card := range m.cards {
			if card.ID == id {
				card.Points = values["points"].(float64)
				return true, nil
			}
		}
		return nil, fmt.Errorf("card %d not found", id)
	})

	return m
}

func (m *memoryERP) addCard(customerID, programID int64, points float64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.cards[[2]int64{customerID, programID}] = &memoryCard{ID: m.nextID, Points: points}
	return m.nextID
}

func (m *memoryERP) points(customerID, programID int64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[[2]int64{customerID, programID}]
	if !ok {
		return 0, false
	}
	return card.Points, true
}

type recordingPublisher struct {
	mu                   sync.Mutex
	orderConfirmed       []*models.OrderConfirmedEvent
	fulfillmentAttempted []*models.FulfillmentAttemptedEvent
	loyaltyRegistered    []*models.LoyaltyRegisteredEvent
	subscriptionCreated  []*models.SubscriptionCreatedEvent
}

func (p *recordingPublisher) PublishOrderConfirmed(_ context.Context, e *models.OrderConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderConfirmed = append(p.orderConfirmed, e)
	return nil
}

func (p *recordingPublisher) PublishFulfillmentAttempted(_ context.Context, e *models.FulfillmentAttemptedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fulfillmentAttempted = append(p.fulfillmentAttempted, e)
	return nil
}

func (p *recordingPublisher) PublishLoyaltyRegistered(_ context.Context, e *models.LoyaltyRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loyaltyRegistered = append(p.loyaltyRegistered, e)
	return nil
}

func (p *recordingPublisher) PublishSubscriptionCreated(_ context.Context, e *models.SubscriptionCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptionCreated = append(p.subscriptionCreated, e)
	return nil
}

// memoryStore implements IdempotencyStore and Cache.
type memoryStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	locks map[string]string
	// missReads makes the next n response lookups report a miss.
	missReads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, locks: map[string]string{}}
}

func (s *memoryStore) GetIdempotentResponse(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missReads > 0 {
		s.missReads--
		return nil, false, nil
	}
	v, ok := s.data["idempotency:"+key]
	return v, ok, nil
}

func (s *memoryStore) SetIdempotentResponse(_ context.Context, key string, payload []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data["idempotency:"+key] = payload
	return nil
}

func (s *memoryStore) AcquireLock(_ context.Context, lockKey, token string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[lockKey]; held {
		return false, nil
	}
	s.locks[lockKey] = token
	return true, nil
}

func (s *memoryStore) ReleaseLock(_ context.Context, lockKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[lockKey] == token {
		delete(s.locks, lockKey)
	}
	return nil
}

func (s *memoryStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	v, ok := s.data["cache:"+key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(v, dst)
}

func (s *memoryStore) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data["cache:"+key] = raw
	return nil
}
