package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/checkpoint/sink"
	"github.com/warriorguo/checkpoint/store/mem"
	"github.com/warriorguo/checkpoint/types"
)

func newTestEngine(reportSink types.ReportSink, mutators ...func(*types.Options)) types.Engine {
	opts := types.NewOptions()
	opts.BatchSize = 1
	opts.BatchInterval = 20 * time.Millisecond
	opts.DeliveryBackoff = time.Millisecond
	for _, m := range mutators {
		m(opts)
	}
	return NewEngine(mem.NewMemStore(), reportSink, opts)
}

func discountWithinPolicy(data types.Data, deps types.DepContext) (bool, error) {
	subtotal, _ := data.GetFloat64("subtotal")
	discount, _ := data.GetFloat64("total_discount")
	if subtotal <= 0 {
		return false, errors.Errorf("subtotal must be positive, got %v", subtotal)
	}
	return discount/subtotal <= 0.30, nil
}

func TestEnsureOutcomes(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	engine.Ensure(ctx, "checkout", "run-1", "discount_applied",
		types.Data{"subtotal": 100.0, "total_discount": 40.0},
		types.WithValidator(discountWithinPolicy))
	engine.Ensure(ctx, "checkout", "run-2", "discount_applied",
		types.Data{"subtotal": 250.0, "total_discount": 25.0},
		types.WithValidator(discountWithinPolicy))
	engine.Ensure(ctx, "checkout", "run-3", "discount_applied",
		types.Data{"subtotal": 0.0, "total_discount": 5.0},
		types.WithValidator(discountWithinPolicy))
	engine.Ensure(ctx, "checkout", "run-4", "cart_created",
		types.Data{"items": 3})

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "discount_applied")
	assert.Nil(t, err)
	assert.Equal(t, types.Failed, ev.Status)
	assert.True(t, ev.Status.Violation())
	assert.Empty(t, ev.Fault)

	ev, err = engine.GetEvent(ctx, "checkout", "run-2", "discount_applied")
	assert.Nil(t, err)
	assert.Equal(t, types.Passed, ev.Status)

	ev, err = engine.GetEvent(ctx, "checkout", "run-3", "discount_applied")
	assert.Nil(t, err)
	assert.Equal(t, types.Faulted, ev.Status)
	assert.Contains(t, ev.Fault, "subtotal must be positive")

	ev, err = engine.GetEvent(ctx, "checkout", "run-4", "cart_created")
	assert.Nil(t, err)
	assert.Equal(t, types.Untested, ev.Status)
	assert.False(t, ev.EvaluatedAt.IsZero())
}

func TestEnsureDistinctTriples(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	for _, flow := range []string{"checkout", "signup"} {
		for _, runID := range []string{"run-a", "run-b"} {
			for _, nodeID := range []string{"first", "second"} {
				engine.Ensure(ctx, flow, runID, nodeID, types.Data{
					"tag": flow + "/" + runID + "/" + nodeID,
				})
			}
		}
	}

	for _, flow := range []string{"checkout", "signup"} {
		for _, runID := range []string{"run-a", "run-b"} {
			for _, nodeID := range []string{"first", "second"} {
				ev, err := engine.GetEvent(ctx, flow, runID, nodeID)
				assert.Nil(t, err)
				tag, _ := ev.Data.GetString("tag")
				assert.Equal(t, flow+"/"+runID+"/"+nodeID, tag)
			}
		}
	}

	events, err := engine.RunEvents(ctx, "checkout", "run-a")
	assert.Nil(t, err)
	assert.Equal(t, 2, len(events))
	assert.NotNil(t, events["first"])
	assert.NotNil(t, events["second"])
}

func TestEnsureOverwrite(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{"items": 1})
	engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{"items": 5},
		types.WithValidator(func(data types.Data, deps types.DepContext) (bool, error) {
			items, _ := data.GetInt("items")
			return items > 0, nil
		}))

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.Nil(t, err)
	items, _ := ev.Data.GetInt("items")
	assert.Equal(t, 5, items)
	assert.Equal(t, types.Passed, ev.Status)

	events, err := engine.RunEvents(ctx, "checkout", "run-1")
	assert.Nil(t, err)
	assert.Equal(t, 1, len(events))
}

func TestEnsureValidatorPanic(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	assert.NotPanics(t, func() {
		engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{},
			types.WithValidator(func(data types.Data, deps types.DepContext) (bool, error) {
				var cart *struct{ Items int }
				return cart.Items > 0, nil
			}))
	})

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.Nil(t, err)
	assert.Equal(t, types.Faulted, ev.Status)
	assert.Contains(t, ev.Fault, "validator panic")
}

func TestEnsureAbsentDep(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	vipRequiresEligibility := func(data types.Data, deps types.DepContext) (bool, error) {
		eligible, _ := deps.Dep("vip_eligibility_check").Data.GetBool("is_vip")
		return eligible, nil
	}

	// the eligibility checkpoint never ran for this transaction
	engine.Ensure(ctx, "checkout", "run-1", "vip_discount_applied", types.Data{},
		types.WithDeps("vip_eligibility_check"),
		types.WithValidator(vipRequiresEligibility))

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "vip_discount_applied")
	assert.Nil(t, err)
	assert.Equal(t, types.Failed, ev.Status)
	assert.Equal(t, []string{"vip_eligibility_check"}, ev.DepIDs)
}

func TestEnsureOrdering(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	pointsMatchOrderTotal := func(data types.Data, deps types.DepContext) (bool, error) {
		points, _ := data.GetInt("points_awarded")
		total, recorded := deps.Dep("order_confirmed").Data.GetFloat64("order_total")
		if !recorded {
			return false, nil
		}
		return points == int(total)*10, nil
	}

	// dep recorded before the dependent checkpoint
	engine.Ensure(ctx, "checkout", "run-1", "order_confirmed", types.Data{"order_total": 60.0})
	engine.Ensure(ctx, "checkout", "run-1", "points_awarded", types.Data{"points_awarded": 600},
		types.WithDeps("order_confirmed"),
		types.WithValidator(pointsMatchOrderTotal))

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "points_awarded")
	assert.Nil(t, err)
	assert.Equal(t, types.Passed, ev.Status)

	// dependent checkpoint delivered first, dep resolves as absent
	engine.Ensure(ctx, "checkout", "run-2", "points_awarded", types.Data{"points_awarded": 600},
		types.WithDeps("order_confirmed"),
		types.WithValidator(pointsMatchOrderTotal))

	ev, err = engine.GetEvent(ctx, "checkout", "run-2", "points_awarded")
	assert.Nil(t, err)
	assert.Equal(t, types.Failed, ev.Status)
}

func TestEnsureConcurrent(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{
				"writer": i,
				"twice":  i * 2,
			})
		}(i)
	}
	wg.Wait()

	// last write wins, and the stored payload is one writer's whole payload
	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.Nil(t, err)
	writer, _ := ev.Data.GetInt("writer")
	twice, _ := ev.Data.GetInt("twice")
	fmt.Printf("winning writer: %d\n", writer)
	assert.Equal(t, writer*2, twice)
	assert.Equal(t, types.Untested, ev.Status)
}

func TestEnsureInvalidArgs(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	engine.Ensure(ctx, "", "run-1", "cart_created", types.Data{})
	engine.Ensure(ctx, "checkout", "", "cart_created", types.Data{})
	engine.Ensure(ctx, "checkout", "run-1", "", types.Data{})

	_, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.True(t, errors.IsNotFound(err))
}

func TestEnsureStoreFault(t *testing.T) {
	ctx := context.Background()
	s := mem.NewMemStoreWithErrHandler(func() error {
		return errors.New("store is down")
	})
	opts := types.NewOptions()
	engine := NewEngine(s, sink.NewCaptureSink(), opts)
	defer engine.Close(ctx)

	assert.NotPanics(t, func() {
		engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{"items": 1})
	})

	_, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.NotNil(t, err)
}

func TestFlowRegistry(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	err := engine.RegisterFlow("checkout", func(f types.Flow) error {
		if err := f.Node("cart_created", "cart created"); err != nil {
			return err
		}
		if err := f.Node("discount_applied", "discounts applied"); err != nil {
			return err
		}
		return f.Dep("discount_applied", "cart_created")
	})
	assert.Nil(t, err)

	err = engine.RegisterFlow("checkout", func(f types.Flow) error {
		return f.Node("cart_created", "")
	})
	assert.True(t, errors.IsAlreadyExists(errors.Cause(err)))

	err = engine.RegisterFlow("cyclic", func(f types.Flow) error {
		if err := f.Node("a", ""); err != nil {
			return err
		}
		if err := f.Node("b", ""); err != nil {
			return err
		}
		if err := f.Dep("a", "b"); err != nil {
			return err
		}
		return f.Dep("b", "a")
	})
	assert.NotNil(t, err)

	var ids []string
	assert.Nil(t, engine.ListNodes("checkout", func(nodeID string) bool {
		ids = append(ids, nodeID)
		return true
	}))
	assert.Equal(t, []string{"cart_created", "discount_applied"}, ids)

	err = engine.ListNodes("unknown", func(nodeID string) bool { return true })
	assert.True(t, errors.IsNotFound(err))

	// implicit flows show up next to the declared ones
	engine.Ensure(ctx, "signup", "run-1", "account_created", types.Data{})
	names, err := engine.ListFlowNames()
	assert.Nil(t, err)
	assert.Contains(t, names, "checkout")
	assert.Contains(t, names, "signup")
}

func TestDeclareNodeDescription(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	engine.DeclareNode("checkout", "cart_created", "cart created for a customer")
	engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{})

	ev, err := engine.GetEvent(ctx, "checkout", "run-1", "cart_created")
	assert.Nil(t, err)
	assert.Equal(t, "cart created for a customer", ev.Description)
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(sink.NewCaptureSink())
	defer engine.Close(ctx)

	assert.Nil(t, engine.RegisterFlow("checkout", func(f types.Flow) error {
		if err := f.Node("cart_created", "cart created"); err != nil {
			return err
		}
		if err := f.Node("discount_applied", "discounts applied"); err != nil {
			return err
		}
		return f.Dep("discount_applied", "cart_created")
	}))

	dot, err := engine.RenderFlow("checkout")
	assert.Nil(t, err)
	fmt.Printf("%s\n", dot)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, "cart_created")
	assert.Contains(t, dot, "cart_created -> discount_applied")

	_, err = engine.RenderFlow("unknown")
	assert.True(t, errors.IsNotFound(err))

	engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{})
	engine.Ensure(ctx, "checkout", "run-1", "discount_applied",
		types.Data{"subtotal": 100.0, "total_discount": 40.0},
		types.WithDeps("cart_created"),
		types.WithValidator(discountWithinPolicy))

	dot, err = engine.RenderRun(ctx, "checkout", "run-1")
	assert.Nil(t, err)
	fmt.Printf("%s\n", dot)
	assert.Contains(t, dot, "red")

	// a run of an implicit flow renders from its events alone
	engine.Ensure(ctx, "signup", "run-1", "account_created", types.Data{})
	dot, err = engine.RenderRun(ctx, "signup", "run-1")
	assert.Nil(t, err)
	assert.Contains(t, dot, "account_created")
}

func TestEngineCloseFlushesSink(t *testing.T) {
	ctx := context.Background()
	capture := sink.NewCaptureSink()
	engine := newTestEngine(capture, func(opts *types.Options) {
		opts.BatchSize = 100
		opts.BatchInterval = time.Minute
	})

	engine.Ensure(ctx, "checkout", "run-1", "cart_created", types.Data{})
	engine.Ensure(ctx, "checkout", "run-1", "discount_applied", types.Data{})
	engine.Ensure(ctx, "checkout", "run-1", "order_confirmed", types.Data{})

	assert.Nil(t, engine.Close(ctx))
	assert.Equal(t, 3, len(capture.Events()))

	// closed engines drop instead of evaluating
	engine.Ensure(ctx, "checkout", "run-1", "points_awarded", types.Data{})
	assert.Equal(t, 3, len(capture.Events()))
	assert.Nil(t, engine.Close(ctx))
}
