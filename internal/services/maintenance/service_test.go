package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnable_ConfirmedPlacesFilesOnEveryHost(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), true)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{
		Type:   models.MaintenanceGeneral,
		Reason: "hardware upgrade",
		Until:  "8PM",
	})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, "Saturday, October 17, 2026, 8:00 PM EDT", result.Window.EstimatedEndDisplay)
	require.Len(t, result.Hosts, 2)

	for _, host := range []string{"web1", "web2"} {
		html := h.fleet.read(t, host, pageFile)
		assert.Contains(t, html, "hardware upgrade")
		assert.Contains(t, html, "Saturday, October 17, 2026, 8:00 PM EDT")
		assert.Equal(t, "", h.fleet.read(t, host, markerFile(models.MaintenanceGeneral)))
		assert.False(t, h.fleet.exists(t, host, markerFile(models.MaintenanceInput)))
	}
	for _, hr := range result.Hosts {
		assert.True(t, hr.Applied)
		assert.NoError(t, hr.Error)
	}

	assert.Len(t, h.prompt.questions, 1)
	assert.Equal(t, ConfirmQuestion, h.prompt.questions[0])
	assert.Equal(t, 1, h.purger.calls)
}

func TestEnable_Declined(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), false)
	before := h.fleet.snapshot(t, "web1")

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{Reason: "hardware upgrade"})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Empty(t, result.Hosts)
	assert.Equal(t, 0, h.fleet.callCount())
	assert.Equal(t, 0, h.purger.calls)
	assert.Empty(t, h.telegram.messages)
	assert.Equal(t, before, h.fleet.snapshot(t, "web1"))
}

func TestEnable_PromptError(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)
	h.prompt.err = errors.New("stdin closed")

	_, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.Error(t, err)
	assert.Equal(t, 0, h.fleet.callCount())
	assert.Equal(t, 0, h.purger.calls)
}

func TestEnable_InvalidUntilFailsBeforePrompt(t *testing.T) {
	for _, until := range []string{"garbage", "whenever it is done"} {
		t.Run(until, func(t *testing.T) {
			h := newHarness(t, testConfig("web1"), true)

			result, err := h.svc.Enable(context.Background(), models.EnableRequest{Until: until})

			require.Error(t, err)
			assert.Nil(t, result)

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, until, inputErr.Value)
			assert.Contains(t, err.Error(), `"8PM"`)
			assert.Contains(t, err.Error(), `"01/28/2012 8:00PM"`)

			assert.Empty(t, h.prompt.questions)
			assert.Equal(t, 0, h.fleet.callCount())
			assert.Equal(t, 0, h.purger.calls)
		})
	}
}

func TestEnable_ValidUntilIsNeverShortly(t *testing.T) {
	tests := map[string]string{
		"8PM":               "Saturday, October 17, 2026, 8:00 PM EDT",
		"8:30 pm":           "Saturday, October 17, 2026, 8:30 PM EDT",
		"01/28/2012 8:00PM": "Saturday, January 28, 2012, 8:00 PM EST",
		"2026-10-18 09:15":  "Sunday, October 18, 2026, 9:15 AM EDT",
	}

	for until, expected := range tests {
		t.Run(until, func(t *testing.T) {
			h := newHarness(t, testConfig("web1"), true)

			result, err := h.svc.Enable(context.Background(), models.EnableRequest{Until: until})

			require.NoError(t, err)
			require.NotNil(t, result.Window.EstimatedEnd)
			assert.NotEqual(t, models.ShortlyDisplay, result.Window.EstimatedEndDisplay)
			assert.Equal(t, expected, result.Window.EstimatedEndDisplay)
		})
	}
}

func TestEnable_Defaults(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceGeneral, result.Window.Type)
	assert.Equal(t, "maintenance", result.Window.Reason)
	assert.Nil(t, result.Window.EstimatedEnd)
	assert.Equal(t, models.ShortlyDisplay, result.Window.EstimatedEndDisplay)

	html := h.fleet.read(t, "web1", pageFile)
	assert.Contains(t, html, "down for maintenance")
	assert.Contains(t, html, "back shortly")
	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
}

func TestEnable_ConfiguredDefaultReason(t *testing.T) {
	cfg := testConfig("web1")
	cfg.Maintenance.DefaultReason = "scheduled upgrades"
	h := newHarness(t, cfg, true)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.Equal(t, "scheduled upgrades", result.Window.Reason)
}

func TestEnable_RestampsStartAfterConfirmation(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	// The clock advances five minutes per reading: 2:30 before the prompt, 2:35 after.
	assert.Equal(t, "Saturday, October 17, 2026, 2:35 PM EDT", result.Window.StartedAtDisplay)
	assert.Contains(t, h.fleet.read(t, "web1", pageFile), "2:35 PM EDT")
}

func TestEnable_AssumeYesSkipsPrompt(t *testing.T) {
	h := newHarness(t, testConfig("web1"), false)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{AssumeYes: true})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Empty(t, h.prompt.questions)
	assert.True(t, h.fleet.exists(t, "web1", pageFile))
}

func TestEnable_ConfirmsOnceForManyHosts(t *testing.T) {
	cfg := testConfig("web1", "web2", "web3", "web4")
	cfg.Maintenance.Parallelism = 2
	h := newHarness(t, cfg, true)

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.Len(t, h.prompt.questions, 1)
	require.Len(t, result.Hosts, 4)
	for i, hr := range result.Hosts {
		assert.Equal(t, cfg.WebHosts()[i], hr.Host)
		assert.True(t, hr.Applied)
	}
}

func TestEnable_RollsBackFailedHost(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), true)
	h.fleet.failFunc = func(host models.Host, args []string) error {
		if host.Name == "web2" && args[0] == "touch" {
			return errors.New("touch: cannot touch: Permission denied")
		}
		return nil
	}

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{Reason: "hardware upgrade"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "web2")
	assert.Contains(t, err.Error(), "create marker")
	assert.NotContains(t, err.Error(), "web1")

	var remoteErr *RemoteExecutionError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "web2", remoteErr.Host.Name)

	assert.True(t, result.Applied)
	assert.True(t, result.Hosts[0].Applied)
	assert.False(t, result.Hosts[1].Applied)
	assert.True(t, result.Hosts[1].RolledBack)

	assert.True(t, h.fleet.exists(t, "web1", pageFile))
	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
	assert.False(t, h.fleet.exists(t, "web2", pageFile))
	assert.False(t, h.fleet.exists(t, "web2", markerFile(models.MaintenanceGeneral)))

	// Cache purge is not undone and still runs for the hosts that succeeded.
	assert.Equal(t, 1, h.purger.calls)
}

func TestEnable_UnreachableHostDoesNotBlockOthers(t *testing.T) {
	cfg := testConfig("web1", "web2")
	cfg.Roles[models.WebRole] = append(cfg.Roles[models.WebRole], models.Host{Name: "web3"})
	h := newHarness(t, cfg, true)
	delete(h.fleet.fs, "web3")

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "web3")
	assert.True(t, result.Hosts[0].Applied)
	assert.True(t, result.Hosts[1].Applied)
	assert.False(t, result.Hosts[2].Applied)
	assert.False(t, result.Hosts[2].RolledBack)
}

func TestEnable_PurgeFailureIsOnlyAWarning(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)
	h.purger.err = errors.New("varnishadm: connection refused")

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.True(t, result.Applied)
	require.Error(t, result.PurgeError)
	assert.True(t, h.fleet.exists(t, "web1", pageFile))
	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
}

func TestEnable_WithoutPurger(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)
	h.svc.purger = nil

	result, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.NoError(t, result.PurgeError)
}

func TestEnable_InvalidType(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	_, err := h.svc.Enable(context.Background(), models.EnableRequest{Type: "partial"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid maintenance type")
	assert.Empty(t, h.prompt.questions)
}

func TestEnable_Notifies(t *testing.T) {
	cfg := testConfig("web1", "web2")
	cfg.Telegram = &models.TelegramConfig{BotToken: "t", ChatID: "c"}
	h := newHarness(t, cfg, true)
	delete(h.fleet.fs, "web2")

	_, err := h.svc.Enable(context.Background(), models.EnableRequest{Reason: "hardware upgrade", Until: "8PM"})

	require.Error(t, err)
	require.Len(t, h.telegram.messages, 1)
	msg := h.telegram.messages[0]
	assert.True(t, msg.Enabled)
	assert.Equal(t, "hardware upgrade", msg.Reason)
	assert.Equal(t, "Saturday, October 17, 2026, 8:00 PM EDT", msg.EstimatedEnd)
	assert.Equal(t, "Saturday, October 17, 2026, 2:35 PM EDT", msg.StartedAt)
	assert.Equal(t, 2, msg.HostsTotal)
	assert.Equal(t, []string{"web2"}, msg.HostsFailed)
}

func TestEnable_NoNotificationWithoutTelegramConfig(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	_, err := h.svc.Enable(context.Background(), models.EnableRequest{})

	require.NoError(t, err)
	assert.Empty(t, h.telegram.messages)
}

func TestEnableThenDisable_RestoresHosts(t *testing.T) {
	for _, mt := range models.MaintenanceTypes {
		t.Run(string(mt), func(t *testing.T) {
			h := newHarness(t, testConfig("web1", "web2"), true)
			h.fleet.write(t, "web1", systemDir+"/uploads.txt", "keep me")
			before := map[string][]string{
				"web1": h.fleet.snapshot(t, "web1"),
				"web2": h.fleet.snapshot(t, "web2"),
			}

			_, err := h.svc.Enable(context.Background(), models.EnableRequest{Type: mt, Until: "8PM"})
			require.NoError(t, err)
			assert.True(t, h.fleet.exists(t, "web1", markerFile(mt)))

			_, err = h.svc.Disable(context.Background(), mt)
			require.NoError(t, err)

			assert.Equal(t, before["web1"], h.fleet.snapshot(t, "web1"))
			assert.Equal(t, before["web2"], h.fleet.snapshot(t, "web2"))
			assert.Equal(t, 2, h.purger.calls)
		})
	}
}

func TestDisable_Idempotent(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), true)

	for i := 0; i < 2; i++ {
		result, err := h.svc.Disable(context.Background(), models.MaintenanceGeneral)

		require.NoError(t, err)
		require.Len(t, result.Hosts, 2)
		for _, hr := range result.Hosts {
			assert.True(t, hr.Applied)
		}
	}
	assert.Empty(t, h.prompt.questions)
}

func TestDisable_InputLeavesGeneralUntouched(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)
	h.fleet.write(t, "web1", pageFile, "<h1>general</h1>")
	h.fleet.write(t, "web1", markerFile(models.MaintenanceGeneral), "")
	before := h.fleet.snapshot(t, "web1")

	result, err := h.svc.Disable(context.Background(), models.MaintenanceInput)

	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceInput, result.Type)
	assert.Equal(t, before, h.fleet.snapshot(t, "web1"))
}

func TestTypesAreIndependent(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	_, err := h.svc.Enable(context.Background(), models.EnableRequest{Type: models.MaintenanceGeneral})
	require.NoError(t, err)
	_, err = h.svc.EnableInput(context.Background(), models.EnableRequest{})
	require.NoError(t, err)

	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceInput)))

	_, err = h.svc.DisableInput(context.Background())
	require.NoError(t, err)

	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
	assert.False(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceInput)))
	assert.True(t, h.fleet.exists(t, "web1", pageFile))

	_, err = h.svc.Disable(context.Background(), models.MaintenanceGeneral)
	require.NoError(t, err)

	assert.False(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
	assert.False(t, h.fleet.exists(t, "web1", pageFile))
}

func TestDisable_KeptPageWarnsAboutStaleText(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)
	ctx := context.Background()

	_, err := h.svc.EnableInput(ctx, models.EnableRequest{Reason: "input freeze"})
	require.NoError(t, err)
	_, err = h.svc.Enable(ctx, models.EnableRequest{Type: models.MaintenanceGeneral, Reason: "hardware upgrade"})
	require.NoError(t, err)

	_, err = h.svc.Disable(ctx, models.MaintenanceGeneral)
	require.NoError(t, err)

	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceInput)))
	assert.Contains(t, h.fleet.read(t, "web1", pageFile), "hardware upgrade")

	logs := h.logs.String()
	assert.Contains(t, logs, `"level":"warn"`)
	assert.Contains(t, logs, "its text may describe the disabled window")
	assert.Contains(t, logs, `"disabled_type":"general"`)
	assert.Contains(t, logs, `"active_type":"input"`)
}

func TestEnableInput_SetsType(t *testing.T) {
	h := newHarness(t, testConfig("web1"), true)

	result, err := h.svc.EnableInput(context.Background(), models.EnableRequest{Type: models.MaintenanceGeneral})

	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceInput, result.Window.Type)
	assert.True(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceInput)))
	assert.False(t, h.fleet.exists(t, "web1", markerFile(models.MaintenanceGeneral)))
}

func TestDisable_ReportsFailedHosts(t *testing.T) {
	cfg := testConfig("web1", "web2")
	cfg.Telegram = &models.TelegramConfig{BotToken: "t", ChatID: "c"}
	h := newHarness(t, cfg, true)
	h.fleet.failFunc = func(host models.Host, args []string) error {
		if host.Name == "web1" && args[0] == "rm" && hasArg(args, models.MaintenanceGeneral.MarkerName()) {
			return errors.New("rm: Read-only file system")
		}
		return nil
	}

	result, err := h.svc.Disable(context.Background(), models.MaintenanceGeneral)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove marker")
	assert.False(t, result.Hosts[0].Applied)
	assert.True(t, result.Hosts[1].Applied)
	assert.Equal(t, 1, h.purger.calls)
	require.Len(t, h.telegram.messages, 1)
	assert.False(t, h.telegram.messages[0].Enabled)
	assert.Equal(t, []string{"web1"}, h.telegram.messages[0].HostsFailed)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), true)
	h.fleet.write(t, "web2", pageFile, "<h1>down</h1>")
	h.fleet.write(t, "web2", markerFile(models.MaintenanceInput), "")

	statuses, err := h.svc.Status(context.Background())

	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.False(t, statuses[0].Active())
	assert.False(t, statuses[0].Page)

	assert.True(t, statuses[1].Active())
	assert.True(t, statuses[1].Page)
	assert.True(t, statuses[1].Markers[models.MaintenanceInput])
	assert.False(t, statuses[1].Markers[models.MaintenanceGeneral])
}

func TestStatus_UnreachableHost(t *testing.T) {
	h := newHarness(t, testConfig("web1", "web2"), true)
	delete(h.fleet.fs, "web1")

	statuses, err := h.svc.Status(context.Background())

	require.Error(t, err)
	assert.Error(t, statuses[0].Error)
	assert.NoError(t, statuses[1].Error)
}

func TestForEachHost_KeepsOrder(t *testing.T) {
	hosts := []models.Host{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	for _, limit := range []int{0, 1, 2} {
		got := forEachHost(context.Background(), hosts, limit, func(ctx context.Context, h models.Host) string {
			if h.Name == "a" {
				time.Sleep(5 * time.Millisecond)
			}
			return h.Name
		})
		assert.Equal(t, []string{"a", "b", "c"}, got)
	}
}

func TestRemoteExecutionError(t *testing.T) {
	err := &RemoteExecutionError{
		Host:   models.Host{Name: "web1", Port: 2222},
		Step:   "create marker",
		Output: "touch: Permission denied\n",
		Err:    errors.New("exit status 1"),
	}

	assert.Equal(t, "web1:2222: create marker: exit status 1: touch: Permission denied", err.Error())
	assert.Equal(t, "exit status 1", errors.Unwrap(err).Error())
}
