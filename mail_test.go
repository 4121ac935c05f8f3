package rw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rw/registry"
)

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(nil)
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, []string{"ann@example.com"}, "Hello", "Hi Ann"))
	assert.ErrorIs(t, m.Send(ctx, nil, "Nobody", ""), ErrNoRecipients)

	assert.Equal(t, []Mail{{To: []string{"ann@example.com"}, Subject: "Hello", Body: "Hi Ann"}}, m.Sent())
	assert.Equal(t, EmailPath, m.PluginPath())
}

type countingMailer struct{ sent int }

func (m *countingMailer) Send(context.Context, []string, string, string) error {
	m.sent++
	return nil
}

func TestSendMail(t *testing.T) {
	reg := registry.NewRegistry(nil)
	_, err := registry.DeclareFor[Mailer](reg, EmailPath, registry.Single)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, SendMail(ctx, reg, []string{"x@example.com"}, "s", "b"), registry.ErrNoImplementationActive)

	m := &countingMailer{}
	require.NoError(t, reg.Activate(EmailPath, m))
	require.NoError(t, SendMail(ctx, reg, []string{"x@example.com"}, "s", "b"))
	assert.Equal(t, 1, m.sent)
}
