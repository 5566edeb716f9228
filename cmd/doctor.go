package cmd

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("walkthrough doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid:\n%s\n", err)
	}

	// Browser
	fmt.Println()
	fmt.Println("  Browser:")
	checkBrowser(cfg.Browser.Bin)
	mode := "windowed"
	if cfg.Browser.Headless {
		mode = "headless"
	}
	fmt.Printf("    %-12s %s, %dx%d\n", "Mode:", mode, cfg.Browser.Width, cfg.Browser.Height)

	// Gateway
	fmt.Println()
	fmt.Println("  Gateway:")
	checkListen(cfg.Gateway.Listen)
	if cfg.Gateway.Token != "" {
		fmt.Printf("    %-12s %s\n", "Token:", "set")
	} else {
		fmt.Printf("    %-12s %s\n", "Token:", "(none, any local client may connect)")
	}

	// Telemetry
	fmt.Println()
	if cfg.Telemetry.Enabled {
		fmt.Printf("  Telemetry: %s via %s\n", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Println("  Telemetry: disabled")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkBrowser(bin string) {
	if bin != "" {
		if _, err := os.Stat(bin); err != nil {
			fmt.Printf("    %-12s %s (NOT FOUND)\n", "Chrome:", bin)
			return
		}
		fmt.Printf("    %-12s %s\n", "Chrome:", bin)
		return
	}
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("    %-12s %s\n", "Chrome:", path)
		return
	}
	fmt.Printf("    %-12s NOT FOUND (rod will download one on first run)\n", "Chrome:")
}

func checkListen(addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Printf("    %-12s %s (in use or unavailable: %s)\n", "Listen:", addr, err)
		return
	}
	ln.Close()
	fmt.Printf("    %-12s %s (free)\n", "Listen:", addr)
}
