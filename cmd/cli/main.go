package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shells-above/swarmre/internal/application"
	"github.com/shells-above/swarmre/internal/infrastructure/config"
	"github.com/shells-above/swarmre/internal/infrastructure/eventbus"
	"github.com/shells-above/swarmre/internal/infrastructure/logger"
)

const (
	cliVersion = "0.2.0"
	cliName    = "ngoclaw"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "NGOClaw — multi-agent reverse-engineering orchestrator",
		Long:  "NGOClaw CLI — 驱动多个协作 Agent 对同一个二进制进行逆向分析",
		Args:  cobra.NoArgs,
		RunE:  runSwarm,
	}

	rootCmd.Flags().StringP("workspace", "w", "", "工作目录")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "环境诊断",
		RunE:  runDoctor,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runSwarm dials the host and coordination server, brings up every agent
// configured under swarm.agents, prints progress as each agent works, and
// blocks until they have all finished or the user interrupts.
func runSwarm(cmd *cobra.Command, args []string) error {
	log, err := logger.NewLogger(logger.Config{
		Level:      "warn",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if w, _ := cmd.Flags().GetString("workspace"); w != "" {
		cfg.Agent.Workspace = w
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\n中断信号已接收, 正在停止所有 Agent...")
		cancel()
	}()

	fmt.Printf("◇ 连接 host(%s) 与 coordination(%s)...\n", cfg.Swarm.HostAddress, cfg.Swarm.CoordinationAddress)
	app, err := application.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}

	printProgress(app)

	fmt.Printf("◇ %d 个 Agent 已就绪, 开始执行各自的任务\n", len(app.Agents()))
	for _, rt := range app.Agents() {
		fmt.Printf("  - %s: %s\n", rt.ID, rt.Task)
	}

	results := app.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("关闭时出错", zap.Error(err))
	}

	fmt.Println("\n◇ 执行结果")
	for _, rt := range app.Agents() {
		result, ok := results[rt.ID]
		if !ok {
			fmt.Printf("  - %s: 未完成\n", rt.ID)
			continue
		}
		fmt.Printf("  - %s (%d 轮, 输入 %d / 输出 %d tokens)\n", rt.ID, result.Iterations, result.Usage.Input, result.Usage.Output)
		fmt.Printf("    %s\n", result.FinalText)
	}

	return nil
}

// printProgress subscribes to the shared Event Bus and prints a one-line
// summary per tool call and state change across every agent, since many
// agents running concurrently would otherwise be silent until completion.
func printProgress(app *application.App) {
	bus := app.Bus()
	bus.Subscribe(eventbus.EventTypeToolCall, func(ctx context.Context, event eventbus.Event) {
		payload, ok := event.Payload().(eventbus.ToolCallPayload)
		if !ok {
			return
		}
		fmt.Printf("  [%s] %s %s\n", payload.AgentID, payload.Phase, payload.Name)
	})
	bus.Subscribe(eventbus.EventTypeStateChanged, func(ctx context.Context, event eventbus.Event) {
		payload, ok := event.Payload().(eventbus.StateChangedPayload)
		if !ok {
			return
		}
		fmt.Printf("  [%s] state -> %s\n", payload.AgentID, payload.NewState)
	})
	bus.Subscribe(eventbus.EventTypeError, func(ctx context.Context, event eventbus.Event) {
		payload, ok := event.Payload().(eventbus.ErrorPayload)
		if !ok {
			return
		}
		fmt.Printf("  [%s] error: %s\n", payload.AgentID, payload.Text)
	})
}

// ─── Doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("◇ NGOClaw Doctor v%s\n\n", cliVersion)

	checks := []struct {
		name  string
		check func() (string, bool)
	}{
		{"配置文件", checkConfig},
		{"Go 工具链", checkGo},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check()
		icon := "\033[92m✓\033[0m"
		if !ok {
			icon = "\033[91m✗\033[0m"
			allOK = false
		}
		fmt.Printf("  %s %s: %s\n", icon, c.name, val)
	}

	fmt.Println()
	if allOK {
		fmt.Println("所有检查通过 ✓")
	} else {
		fmt.Println("存在问题, 请检查上方标记")
	}
	return nil
}

func checkConfig() (string, bool) {
	path := os.Getenv("HOME") + "/.ngoclaw/config.yaml"
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return "未找到 ~/.ngoclaw/config.yaml", false
}

func checkGo() (string, bool) {
	for _, p := range []string{"/usr/local/go/bin/go", "/usr/bin/go", "/usr/lib/go/bin/go"} {
		if _, err := os.Stat(p); err == nil {
			return "已安装", true
		}
	}
	return "未安装", false
}
