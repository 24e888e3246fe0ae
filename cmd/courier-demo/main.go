// Command courier-demo runs two brokers acting as browser tabs of one
// session group, shows a request-reply between clients, a broadcast, and
// the relay of both to the other tab.
//
// Tabs talk over NATS when NATS_URL is set and in process otherwise.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/natsx"
	"github.com/casualjim/courier/plugins"
	"github.com/casualjim/courier/tabsync"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

type UserCreated struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

type ProfileQuery struct {
	UserID string `json:"userId"`
}

type Profile struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

var (
	userCreated   = events.Define[UserCreated]("user.created.v1")
	profileLookup = events.Define[ProfileQuery]("profile.lookup.v1")

	catalog = events.NewCatalog(userCreated, profileLookup)
)

func main() {
	ctx := context.Background()

	channels, cleanup, err := openTabChannels()
	if err != nil {
		slog.Error("failed to open tab channels", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	reader := sdkmetric.NewManualReader()
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = meters.Shutdown(ctx) }()

	first, err := newTab(channels[0], meters)
	if err != nil {
		slog.Error("failed to create first tab", "error", err)
		os.Exit(1)
	}
	defer func() { _ = first.Destroy() }()

	second, err := newTab(channels[1], meters)
	if err != nil {
		slog.Error("failed to create second tab", "error", err)
		os.Exit(1)
	}
	defer func() { _ = second.Destroy() }()

	if err := run(ctx, first, second); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		slog.Error("failed to collect metrics", "error", err)
		return
	}
	fmt.Println(color.CyanString("metrics"))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					fmt.Printf("%s %v = %d\n", color.YellowString(m.Name), dp.Attributes.ToSlice(), dp.Value)
				}
			}
		}
	}
}

func openTabChannels() ([2]tabsync.Channel, func(), error) {
	if !natsx.Configured() {
		hub := tabsync.NewLocalHub()
		return [2]tabsync.Channel{hub.Open(tabsync.ChannelName), hub.Open(tabsync.ChannelName)}, func() {}, nil
	}

	nc, err := natsx.NewClient()
	if err != nil {
		return [2]tabsync.Channel{}, nil, err
	}
	slog.Info("relaying tabs over nats", "url", nc.ConnectedUrl())
	return [2]tabsync.Channel{
		tabsync.NewNATSChannel(nc, ""),
		tabsync.NewNATSChannel(nc, ""),
	}, nc.Close, nil
}

func newTab(channel tabsync.Channel, meters *sdkmetric.MeterProvider) (*courier.Broker, error) {
	b, err := courier.New(courier.WithTabChannel(channel), courier.WithCatalog(catalog))
	if err != nil {
		return nil, err
	}
	b.RegisterHooks(
		plugins.Logging(slog.Default()),
		plugins.Metrics(meters.Meter("courier-demo")),
		plugins.SchemaValidation(catalog),
		plugins.AccessControl(
			plugins.Rule{EventType: "user.*"},
			plugins.Rule{Sender: "dashboard", EventType: "profile.*"},
		),
	)
	return b, nil
}

func run(ctx context.Context, first, second *courier.Broker) error {
	profiles, err := client.NewInMemory(first, "profiles")
	if err != nil {
		return err
	}
	dashboard, err := client.NewInMemory(first, "dashboard")
	if err != nil {
		return err
	}
	mailer, err := client.NewInMemory(second, "mailer")
	if err != nil {
		return err
	}

	if err := courier.On(ctx, first, profiles.ID(), profileLookup, func(_ context.Context, ev events.Event[ProfileQuery]) (any, error) {
		return Profile{UserID: ev.Payload.UserID, Name: "Ada Lovelace"}, nil
	}); err != nil {
		return err
	}

	if err := courier.On(ctx, first, profiles.ID(), userCreated, func(_ context.Context, ev events.Event[UserCreated]) (any, error) {
		slog.Info("profile created", "user", ev.Payload.UserID)
		return nil, nil
	}); err != nil {
		return err
	}

	welcomed := make(chan string, 1)
	if err := courier.On(ctx, second, mailer.ID(), userCreated, func(_ context.Context, ev events.Event[UserCreated]) (any, error) {
		welcomed <- ev.Payload.Email
		return nil, nil
	}); err != nil {
		return err
	}

	fmt.Println(color.CyanString("request-reply"))
	res := courier.Send(ctx, first, profileLookup, dashboard.ID(), profiles.ID(), ProfileQuery{UserID: "1"})
	pp.Println(res)
	if profile, ok := courier.Reply[Profile](res); ok {
		fmt.Printf("%s %s\n", color.GreenString("profile:"), profile.Name)
	}

	fmt.Println(color.CyanString("access denied"))
	pp.Println(courier.Send(ctx, first, profileLookup, mailer.ID(), profiles.ID(), ProfileQuery{UserID: "1"}))

	fmt.Println(color.CyanString("broadcast across tabs"))
	pp.Println(dashboard.Dispatch(ctx, userCreated.Name(), events.Wildcard, UserCreated{UserID: "1", Email: "ada@example.com"}))

	select {
	case email := <-welcomed:
		fmt.Printf("%s %s\n", color.GreenString("welcome mail for"), email)
	case <-time.After(2 * time.Second):
		fmt.Println(color.RedString("broadcast did not reach the other tab"))
	}

	fmt.Println(color.CyanString("subscriptions"))
	pp.Println(first.Subscriptions(), second.Subscriptions())
	return nil
}
