// Package setup generates a config file through an interactive terminal wizard.
package setup

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeledger/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Platform      string
	Stream        bool
	Cache         string
	RedisAddr     string
	ChainMode     string
	RPCURL        string
	Contract      string
	JournalDriver string
	JournalDSN    string
	OpsAddr       string
	SyncEnabled   bool
	SyncInterval  string
}

// DefaultAnswers a local simulated setup.
func DefaultAnswers() Answers {
	return Answers{
		Platform:      config.PlatformBinance,
		Stream:        true,
		Cache:         config.CacheMemory,
		RedisAddr:     "localhost:6379",
		ChainMode:     config.ChainSimulated,
		JournalDriver: "sqlite",
		JournalDSN:    "data/journal.db",
		OpsAddr:       ":8090",
		SyncInterval:  "1m",
	}
}

// ConfigTmp converts the answers to a config file body.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	stream := a.Stream
	tmp := config.ConfigTmp{
		Oracle: config.OracleTmp{
			Platform: a.Platform,
			Stream:   &stream,
			Cache:    a.Cache,
		},
		Chain:   config.ChainTmp{Mode: a.ChainMode},
		Journal: config.JournalConfigTmp{Driver: a.JournalDriver, DSN: a.JournalDSN},
		Ops:     config.OpsConfigTmp{Addr: a.OpsAddr},
		PriceSync: config.PriceSyncTmp{
			Enabled: a.SyncEnabled,
		},
	}
	if a.Cache == config.CacheRedis {
		tmp.Oracle.Redis = config.RedisTmp{Addr: a.RedisAddr}
	}
	if a.ChainMode == config.ChainRPC {
		tmp.Chain.RPCURL = a.RPCURL
		tmp.Chain.Contract = a.Contract
	}
	if a.SyncEnabled {
		d, err := time.ParseDuration(a.SyncInterval)
		if err != nil {
			return config.ConfigTmp{}, errors.Wrap(err, "price sync interval")
		}
		tmp.PriceSync.Interval = d
	}
	return tmp, nil
}

// Save validates the answers the way Load would and writes them to path.
func Save(path string, a Answers) error {
	tmp, err := a.ConfigTmp()
	if err != nil {
		return err
	}
	if _, err := config.Build(tmp); err != nil {
		return errors.Wrap(err, "generated config is invalid")
	}
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

// Run walks through the wizard and writes the result to path.
func Run(out io.Writer, path string) error {
	a := DefaultAnswers()
	confirm := false

	step := func(name string) {
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintln(out, headerStyle.Render("TRADELEDGER CONFIG WIZARD"))
		fmt.Fprintln(out, stepStyle.Render(name))
	}

	step("STEP 1: PRICE ORACLE")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Price upstream").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
				).
				Value(&a.Platform),
			huh.NewConfirm().
				Title("Stream prices over websocket?").
				Description("Binance only; other platforms are polled").
				Value(&a.Stream),
			huh.NewSelect[string]().
				Title("Price cache").
				Options(
					huh.NewOption("In memory", config.CacheMemory),
					huh.NewOption("Redis", config.CacheRedis),
				).
				Value(&a.Cache),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.Cache == config.CacheRedis {
		if err := huh.NewInput().Title("Redis address").Value(&a.RedisAddr).Run(); err != nil {
			return err
		}
	}

	step("STEP 2: LEDGER CONTRACT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Chain").
				Options(
					huh.NewOption("Simulated node (local state)", config.ChainSimulated),
					huh.NewOption("JSON-RPC node", config.ChainRPC),
				).
				Value(&a.ChainMode),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.ChainMode == config.ChainRPC {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("RPC URL").
					Value(&a.RPCURL).
					Validate(notEmpty("rpc url")),
				huh.NewInput().
					Title("Contract address").
					Value(&a.Contract).
					Validate(func(s string) error {
						if !common.IsHexAddress(s) {
							return fmt.Errorf("not an address")
						}
						return nil
					}),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	step("STEP 3: JOURNAL")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Journal database").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("Postgres", "postgres"),
				).
				Value(&a.JournalDriver),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.JournalDriver == "postgres" {
		a.JournalDSN = ""
	}
	err = huh.NewInput().
		Title("Journal DSN").
		Description("SQLite path or postgres:// URL; empty reads TRADELEDGER_JOURNAL_DSN").
		Value(&a.JournalDSN).
		Run()
	if err != nil {
		return err
	}

	step("STEP 4: OPERATIONS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ops server address").
				Value(&a.OpsAddr).
				Validate(notEmpty("address")),
			huh.NewConfirm().
				Title("Push oracle prices into the contract?").
				Description("Needs TRADELEDGER_ADMIN_KEY").
				Value(&a.SyncEnabled),
			huh.NewInput().
				Title("Price sync interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.SyncInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	fmt.Fprintln(out, lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary(a)))
	err = huh.NewConfirm().
		Title("Save configuration to " + path + "?").
		Affirmative("Yes, save").
		Negative("No, exit").
		Value(&confirm).
		Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := Save(path, a); err != nil {
		return err
	}
	fmt.Fprintln(out, lipgloss.NewStyle().Foreground(special).Render("\n✓ Configuration saved to "+path))
	fmt.Fprintln(out, lipgloss.NewStyle().Foreground(subtle).Render("Set TRADELEDGER_ADMIN_KEY, then run: tradeledger serve --config "+path))
	return nil
}

func summary(a Answers) string {
	lines := []string{
		"Upstream: " + a.Platform,
		fmt.Sprintf("Stream:   %v", a.Stream),
		"Cache:    " + a.Cache,
		"Chain:    " + a.ChainMode,
		"Journal:  " + a.JournalDriver,
		"Ops:      " + a.OpsAddr,
	}
	if a.SyncEnabled {
		lines = append(lines, "Sync:     every "+a.SyncInterval)
	}
	return strings.Join(lines, "\n")
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}
