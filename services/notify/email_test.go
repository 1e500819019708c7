package notifysvc_test

import (
	"context"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/swcache/core/cache"
	emailsvc "github.com/trezcool/swcache/services/email"
	notifysvc "github.com/trezcool/swcache/services/notify"
	"github.com/trezcool/swcache/tests"
)

func TestEmailRelay_Show(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig(t)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))
	tray := notifysvc.NewTray()

	relay := notifysvc.NewEmailRelay(tray, mailSvc, "https://app.test/", "Ops <ops@test.cd>", "not an address")
	n := cache.NewNotification(cache.Payload{Title: "Deploy", Body: "v2 is live", URL: "/releases/2"}, cache.NotificationDefaults{})
	require.NoError(t, relay.Show(ctx, n))

	// shown in the tray
	got, err := tray.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got)

	// & mirrored by email
	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, []mail.Address{{Name: "Ops", Address: "ops@test.cd"}}, sent[0].To)
	assert.Equal(t, "Deploy", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "v2 is live")
	assert.Contains(t, sent[0].TextContent, "https://app.test/releases/2")
	assert.Contains(t, sent[0].HTMLContent, "https://app.test/releases/2")
	// rendered inside the base layouts
	assert.Contains(t, sent[0].TextContent, "--\n"+conf.AppName)
	assert.Contains(t, sent[0].HTMLContent, "<!DOCTYPE html>")

	// closing goes through to the tray
	require.NoError(t, relay.Close(ctx, n.ID))
	list, err := relay.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmailRelay_noRecipients(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig(t)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))

	relay := notifysvc.NewEmailRelay(notifysvc.NewTray(), mailSvc, "https://app.test")
	require.NoError(t, relay.Show(ctx, cache.NewNotification(cache.Payload{}, cache.NotificationDefaults{Title: "T"})))
	assert.Empty(t, mailSvc.SentMessages())
}
