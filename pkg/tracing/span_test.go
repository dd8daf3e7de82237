package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/config"
)

func TestTracerBuildsSpanTree(t *testing.T) {
	tr := NewTracer(config.TracingConfig{Enabled: true, SampleRate: 1})
	ctx, root := tr.Start(context.Background(), "facet.request", "req-1")
	require.NotNil(t, root)
	assert.Same(t, root, SpanFromContext(ctx))

	_, round := StartChildSpan(ctx, "facet.round")
	require.NotNil(t, round)
	round.SetAttr("round", 1)
	round.End()

	tr.Finish(root)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "req-1", root.Children[0].TraceID)
	assert.Equal(t, 1, root.Children[0].Attrs["round"])
}

func TestUnsampledSpansAreNil(t *testing.T) {
	tr := NewTracer(config.TracingConfig{Enabled: false, SampleRate: 1})
	ctx, root := tr.Start(context.Background(), "facet.request", "req-1")
	assert.Nil(t, root)
	_, child := StartChildSpan(ctx, "facet.round")
	assert.Nil(t, child)
	assert.NotPanics(t, func() {
		child.SetAttr("k", "v")
		child.End()
		tr.Finish(root)
	})

	tr = NewTracer(config.TracingConfig{Enabled: true, SampleRate: 0})
	_, root = tr.Start(context.Background(), "facet.request", "req-2")
	assert.Nil(t, root)
}
