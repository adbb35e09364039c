package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"badgehub/internal/fetch"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/relay"
	"badgehub/internal/retry"
	"badgehub/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type cliFixture struct {
	t      *testing.T
	source *relay.MemorySource
	issuer *nostr.KeySigner
	user   *nostr.KeySigner
	def    *models.BadgeDefinition
	award  *models.AwardRecord
}

func (f *cliFixture) open(logger *zap.Logger) (*services.ServiceCollection, error) {
	resolver := services.DefaultResolverConfig()
	resolver.AwardBudget = 500 * time.Millisecond
	resolver.DefinitionBudget = 300 * time.Millisecond
	resolver.FallbackBudget = 100 * time.Millisecond
	resolver.DisplayBudget = 300 * time.Millisecond
	resolver.ProfileBudget = 300 * time.Millisecond
	resolver.CatalogBudget = 300 * time.Millisecond
	resolver.ConfirmBudget = 100 * time.Millisecond
	resolver.FallbackPolicy = retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond, Strategy: retry.StrategyLinear}
	resolver.ConfirmPolicy = retry.Policy{MaxAttempts: 3, Interval: 20 * time.Millisecond, Strategy: retry.StrategyLinear}

	return services.NewServiceCollectionFrom(services.Dependencies{
		Source:   f.source,
		Keyring:  nostr.NewKeyring(f.issuer, f.user),
		Creator:  f.issuer.PublicKey(),
		Resolver: resolver,
		Fetch:    fetch.NewScheduler(f.source, retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond}, nil),
	}, logger)
}

// newCLIFixture publishes one definition and one award to a shared memory
// source that every command invocation reads from.
func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	issuer, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	user, err := nostr.GenerateKeySigner()
	require.NoError(t, err)

	f := &cliFixture{t: t, source: relay.NewMemorySource(), issuer: issuer, user: user}

	sc, err := f.open(zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, sc.Start(ctx))
	defer func() { require.NoError(t, sc.Shutdown(ctx)) }()

	f.def, err = sc.IssuanceService.CreateDefinition(ctx, issuer.PublicKey(), &services.CreateDefinitionRequest{
		Slug: "night-owl",
		Name: "Night Owl",
	})
	require.NoError(t, err)
	f.award, err = sc.IssuanceService.AwardBadge(ctx, issuer.PublicKey(), f.def.ID, []string{user.PublicKey()})
	require.NoError(t, err)
	return f
}

// run executes badgectl with args and returns stdout, stderr and the error.
func (f *cliFixture) run(args ...string) (string, string, error) {
	f.t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Open: f.open})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

type jsonEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decodeJSON(t *testing.T, out string, dst interface{}) {
	t.Helper()
	var env jsonEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	assert.Equal(t, "ok", env.Status)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestAwardsCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("awards", f.user.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, f.def.ID)
	assert.Contains(t, out, "Night Owl")
	assert.Contains(t, out, "resolved")

	npub, err := nostr.EncodePublicKey(f.user.PublicKey())
	require.NoError(t, err)
	out, _, err = f.run("awards", npub, "--format", "json")
	require.NoError(t, err)

	var result AwardsResult
	decodeJSON(t, out, &result)
	assert.Equal(t, f.user.PublicKey(), result.Recipient)
	require.Len(t, result.Awards, 1)
	assert.Equal(t, f.award.ID, result.Awards[0].AwardID)
	assert.Zero(t, result.Pending)
}

func TestAwardsCommandEmptyAndInvalid(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("awards", f.issuer.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, "No badges awarded")

	_, _, err = f.run("awards", "not-a-key")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "INVALID_KEY", ErrorCode(err))
}

func TestBadgesCommands(t *testing.T) {
	f := newCLIFixture(t)

	out, _, err := f.run("badges", "list", "--issuer", f.issuer.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, f.def.ID)

	out, _, err = f.run("badges", "show", f.def.ID, "--format", "json")
	require.NoError(t, err)
	var def models.BadgeDefinition
	decodeJSON(t, out, &def)
	assert.Equal(t, "Night Owl", def.Name)

	out, _, err = f.run("badges", "recipients", f.def.ID)
	require.NoError(t, err)
	assert.Contains(t, out, f.user.PublicKey())

	other, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	out, _, err = f.run("badges", "award", f.def.ID, other.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, "to 1 recipients")

	out, _, err = f.run("awards", other.PublicKey(), "--format", "json")
	require.NoError(t, err)
	var result AwardsResult
	decodeJSON(t, out, &result)
	assert.Len(t, result.Awards, 1)
}

func TestBadgesShowNotFound(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := f.run("badges", "show", "30009:"+f.issuer.PublicKey()+":missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "NOT_FOUND", ErrorCode(err))
}

func TestDisplayCommands(t *testing.T) {
	f := newCLIFixture(t)
	user := f.user.PublicKey()

	out, _, err := f.run("display", "show", user)
	require.NoError(t, err)
	assert.Contains(t, out, "No badges displayed")

	out, _, err = f.run("display", "add", user, f.def.ID, f.award.ID, "--wait", "2s", "--format", "json")
	require.NoError(t, err)
	var added DisplayResult
	decodeJSON(t, out, &added)
	require.NotNil(t, added.Changed)
	assert.True(t, *added.Changed)
	require.NotNil(t, added.Confirmed)
	assert.True(t, *added.Confirmed)
	require.Len(t, added.List.Entries, 1)
	assert.Equal(t, f.award.ID, added.List.Entries[0].AwardID)

	out, _, err = f.run("display", "show", user)
	require.NoError(t, err)
	assert.Contains(t, out, f.def.ID)

	out, _, err = f.run("display", "remove", user, f.def.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Display list updated")
	assert.Contains(t, out, "No badges displayed")
}

func TestDisplayRequiresSigner(t *testing.T) {
	f := newCLIFixture(t)
	stranger, err := nostr.GenerateKeySigner()
	require.NoError(t, err)

	_, _, err = f.run("display", "add", stranger.PublicKey(), f.def.ID, f.award.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrSignerUnavailable))
}

func TestProfileCommand(t *testing.T) {
	f := newCLIFixture(t)

	_, _, err := f.run("profile", f.user.PublicKey())
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", ErrorCode(err))

	meta, err := f.user.Sign(nostr.Template{
		Kind:      nostr.KindMetadata,
		Content:   `{"name":"owl","about":"awake"}`,
		CreatedAt: time.Now().Unix(),
	})
	require.NoError(t, err)
	f.source.Add(*meta)

	out, _, err := f.run("profile", f.user.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, "owl")
	assert.Contains(t, out, "awake")
}

func TestRelaysCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.yaml")
	f := &cliFixture{t: t}

	out, _, err := f.run("relays", "add", "wss://one.example", "wss://two.example/", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wss://one.example")
	assert.Contains(t, out, "wss://two.example")

	out, _, err = f.run("relays", "remove", "wss://two.example", "--file", path, "--format", "json")
	require.NoError(t, err)
	var result RelaysResult
	decodeJSON(t, out, &result)
	assert.Equal(t, []string{"wss://one.example"}, result.Relays)

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = f.run("relays", "add", "https://not-a-relay.example", "--file", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	f := &cliFixture{t: t}
	_, _, err := f.run("relays", "list", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReportWritesJSONError(t *testing.T) {
	out := &bytes.Buffer{}
	code := Report(&OutputFormatter{Format: "json", Writer: out}, services.NewNotFoundError("Badge definition not found"))
	assert.Equal(t, ExitFailure, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("VERSION", "9.9.9")
	f := &cliFixture{t: t}
	out, _, err := f.run("version")
	require.NoError(t, err)
	assert.Equal(t, "badgehub 9.9.9\n", out)
}
