package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walkthrough/internal/config"
	"github.com/nextlevelbuilder/walkthrough/pkg/protocol"
)

var remoteAddr string

func remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a running walkthrough through its gateway",
	}
	cmd.PersistentFlags().StringVar(&remoteAddr, "addr", "", "gateway address (default gateway.listen)")

	simple := []struct {
		use, short, method string
	}{
		{"status", "Show the walkthrough state", protocol.MethodStatus},
		{"start", "Start at the first step", protocol.MethodStart},
		{"next", "Advance (runs the step's checks)", protocol.MethodNext},
		{"back", "Go to the previous step", protocol.MethodBack},
		{"skip", "Stop and keep the current step", protocol.MethodSkip},
		{"finish", "Stop and reset to the first step", protocol.MethodFinish},
	}
	for _, s := range simple {
		method := s.method
		cmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				remoteCall(method, nil)
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "goto <step>",
		Short: "Jump to a step (1-based)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "Error: step must be a positive number, got %q\n", args[0])
				os.Exit(1)
			}
			remoteCall(protocol.MethodGoTo, protocol.GoToParams{Index: n - 1})
		},
	})
	cmd.AddCommand(remoteWatchCmd())
	return cmd
}

func remoteCall(method string, params any) {
	resp, err := gatewayRPC(method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Failed: %s\n", formatRemoteError(resp.Error))
		os.Exit(1)
	}
	data, _ := json.MarshalIndent(resp.Payload, "", "  ")
	fmt.Println(string(data))
}

func remoteWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print walkthrough events until interrupted",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			conn, err := dialGateway()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer conn.Close()

			ctx := cmd.Context()
			go func() {
				<-ctx.Done()
				conn.Close()
			}()
			for {
				var ev protocol.EventFrame
				if err := conn.ReadJSON(&ev); err != nil {
					if ctx.Err() == nil {
						fmt.Fprintf(os.Stderr, "Error: %v\n", err)
						os.Exit(1)
					}
					return
				}
				if ev.Type != protocol.FrameTypeEvent {
					continue
				}
				payload, _ := json.Marshal(ev.Payload)
				fmt.Printf("%s %-20s %s\n", time.Now().Format("15:04:05"), ev.Event, payload)
			}
		},
	}
}

func gatewayURL(cfg *config.Config) url.URL {
	addr := remoteAddr
	if addr == "" {
		addr = cfg.Gateway.Listen
	}
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
}

// dialGateway connects and completes the connect handshake.
func dialGateway() (*websocket.Conn, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	u := gatewayURL(cfg)
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to gateway at %s: %w", u.String(), err)
	}

	connectReq, err := protocol.NewRequest("cli-connect", protocol.MethodConnect, protocol.ConnectParams{
		Token:    cfg.Gateway.Token,
		Protocol: protocol.ProtocolVersion,
		Client:   "walkthrough-cli",
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(connectReq); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send connect: %w", err)
	}

	resp, err := readResponse(conn, connectReq.ID, 5*time.Second)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	if !resp.OK {
		conn.Close()
		return nil, fmt.Errorf("connect failed: %s", formatRemoteError(resp.Error))
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// gatewayRPC sends one request over a fresh connection and returns its
// response.
func gatewayRPC(method string, params any) (*protocol.ResponseFrame, error) {
	conn, err := dialGateway()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req, err := protocol.NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send RPC: %w", err)
	}
	// walkthrough.next waits for the step's checks.
	return readResponse(conn, req.ID, 45*time.Second)
}

// readResponse skips events until the response to id arrives.
func readResponse(conn *websocket.Conn, id string, timeout time.Duration) (*protocol.ResponseFrame, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		frameType, _ := protocol.ParseFrameType(msg)
		if frameType != protocol.FrameTypeResponse {
			continue
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == id {
			return &resp, nil
		}
	}
}
