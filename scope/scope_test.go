package scope

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_ProviderResolvedOnce(t *testing.T) {
	s := New()
	user := &struct{ Name string }{"dino"}
	var runs atomic.Int32
	s.Provide("user", func() (any, error) {
		runs.Add(1)
		return user, nil
	})

	ctx := Enter(context.Background(), s)
	for i := 0; i < 3; i++ {
		v, err := Get(ctx, "user")
		require.NoError(t, err)
		assert.Same(t, user, v)
	}
	assert.Equal(t, int32(1), runs.Load())

	// the provider was replaced by its value
	v, ok, err := s.Lookup("user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, user, v)
}

func TestScope_ProviderConcurrentGet(t *testing.T) {
	s := New()
	var runs atomic.Int32
	s.Provide("counter", func() (any, error) {
		runs.Add(1)
		return 42, nil
	})
	ctx := Enter(context.Background(), s)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Get(ctx, "counter")
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestScope_ProviderError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.Provide("broken", func() (any, error) { return nil, boom })

	ctx := Enter(context.Background(), s)
	_, err := Get(ctx, "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	v, err := GetOr(ctx, "broken", "default")
	assert.ErrorIs(t, err, boom, "provider failures are not replaced by the default")
	assert.Nil(t, v)
}

func TestChain_Fallback(t *testing.T) {
	outer, middle, inner := New(), New(), New()
	outer.Set("x", "outer")
	middle.Set("y", "middle")

	ctx := Enter(context.Background(), outer)
	ctx = Enter(ctx, middle)
	ctx = Enter(ctx, inner)

	v, err := Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "outer", v)

	inner.Set("x", "inner")
	v, err = Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "inner", v)

	_, err = Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.True(t, IsNotFound(err))
	v, err = GetOr(ctx, "missing", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)
	v, err = GetOr(context.Background(), "x", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v, "no active scope")
	assert.Equal(t, 3, ChainOf(ctx).Len())
	assert.Equal(t, []*Scope{outer, middle, inner}, ChainOf(ctx).Scopes())
}

func TestChain_EnterIsStructural(t *testing.T) {
	s1, s2 := New(), New()
	base := context.Background()
	assert.Nil(t, Current(base))

	ctx1 := Enter(base, s1)
	assert.Same(t, s1, Current(ctx1))

	ctx2 := Enter(ctx1, s2)
	assert.Same(t, s2, Current(ctx2))
	assert.Same(t, s2, Current(Enter(ctx2, s2)), "re-entering the innermost scope is a no-op")
	assert.Equal(t, 2, ChainOf(Enter(ctx2, s2)).Len())
	assert.Same(t, s1, Current(Enter(ctx2, s1)))

	// the outer context is untouched
	assert.Same(t, s1, Current(ctx1))

	err := Run(ctx1, s2, func(ctx context.Context) error {
		assert.Same(t, s2, Current(ctx))
		return errors.New("fail inside scope")
	})
	require.Error(t, err)
	assert.Same(t, s1, Current(ctx1))
}

func TestChain_ConcurrentUnitsDoNotLeak(t *testing.T) {
	a, b := New(), New()
	a.Set("name", "a")
	b.Set("name", "b")

	lockA, lockB := make(chan struct{}), make(chan struct{})
	results := make(chan string, 2)
	worker := func(ctx context.Context, lock chan struct{}) {
		<-lock
		v, _ := Value[string](ctx, "name")
		results <- v
	}

	go worker(Enter(context.Background(), a), lockA)
	go worker(Enter(context.Background(), b), lockB)

	close(lockB)
	assert.Equal(t, "b", <-results)
	close(lockA)
	assert.Equal(t, "a", <-results)
}

func TestChain_SubScopeView(t *testing.T) {
	s1, s2, s3 := New(), New(), New()
	sub1 := s1.Sub("my_sub_scope")
	sub2 := s2.Sub("my_sub_scope")
	assert.Same(t, sub1, s1.Sub("my_sub_scope"))

	sub1.Set("value_1", 1)
	sub1.Set("shared", 1)
	sub2.Set("value_2", 2)
	sub2.Set("shared", 2)

	view := func(ctx context.Context) *View {
		v, err := Value[*View](ctx, "my_sub_scope")
		require.NoError(t, err)
		return v
	}

	ctx1 := Enter(context.Background(), s1)
	v := view(ctx1)
	assert.Equal(t, "my_sub_scope", v.Name())
	got, err := v.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.False(t, v.Has("value_2"))

	ctx2 := Enter(ctx1, s2)
	for _, ctx := range []context.Context{ctx2, Enter(ctx2, s3)} {
		v = view(ctx)
		got, err = v.Get("value_1")
		require.NoError(t, err)
		assert.Equal(t, 1, got)
		got, err = v.Get("value_2")
		require.NoError(t, err)
		assert.Equal(t, 2, got)
		got, err = v.Get("shared")
		require.NoError(t, err)
		assert.Equal(t, 2, got)
		assert.Equal(t, []string{"shared", "value_1", "value_2"}, v.Keys())
	}

	_, err = view(ctx1).Get("nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestScope_SetDefaultAndKeys(t *testing.T) {
	s := NewWith(map[string]any{"a": 1})
	assert.Equal(t, 1, s.SetDefault("a", 2))
	assert.Equal(t, 3, s.SetDefault("b", 3))
	s.Provide("c", func() (any, error) { return 4, nil })
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.True(t, s.Has("c"))

	s.Delete("c")
	assert.False(t, s.Has("c"))
	_, err := s.Get("c")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestValue_WrongType(t *testing.T) {
	ctx := Enter(context.Background(), NewWith(map[string]any{"n": 1}))
	_, err := Value[string](ctx, "n")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = Get(context.Background(), "n")
	assert.ErrorIs(t, err, ErrOutsideScope)
}

type testActivator struct {
	name  string
	calls int
	err   error
}

func (a *testActivator) Name() string { return a.name }

func (a *testActivator) Activate(ctx context.Context) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	Current(ctx).Set("foo", 1)
	return nil
}

func TestScope_Activate(t *testing.T) {
	s := New()
	a := &testActivator{name: "rw.test"}

	require.NoError(t, s.Activate(context.Background(), a))
	require.NoError(t, s.Activate(context.Background(), a))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, []string{"rw.test"}, s.Active())
	assert.True(t, s.IsActive("rw.test"))

	v, err := s.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	failing := &testActivator{name: "rw.failing", err: errors.New("nope")}
	err = s.Activate(context.Background(), failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rw.failing")
	assert.False(t, s.IsActive("rw.failing"))
}
