package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/fetch"
	"github.com/any-hub/any-cache/internal/filecache"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/server/routes"
	"github.com/any-hub/any-cache/internal/validate"
	"github.com/any-hub/any-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	cacheOpts := cfg.CacheOptions()
	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_path"] = cfg.Global.StoragePath
		fields["file_dir_name"] = cacheOpts.FileDirName
		fields["prune_limit"] = cfg.Cache.CachePruneTriggerLimit.String()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 下载器 → 缓存引擎（清理暂存目录）→ 配置热更新 → Fiber server。
	downloader := fetch.New(fetch.NewClient(cfg.Global.UpstreamTimeout.DurationValue()))
	if ua := cfg.Global.UserAgent; ua != "" {
		downloader = downloader.WithUserAgent(ua)
	} else {
		downloader = downloader.WithUserAgent(version.UserAgent())
	}

	engine, err := filecache.New(filecache.Config{
		StoragePath: cfg.Global.StoragePath,
		Options:     cacheOpts,
		Fetcher:     downloader,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	if cfg.Global.WatchConfig {
		err := config.Watch(opts.configPath, logger, func(next *config.Config) {
			engine.SetOptions(next.CacheOptions())
		})
		if err != nil {
			logger.WithError(err).WithFields(logging.BaseFields("options_reload", opts.configPath)).
				Warn("配置热更新未启用")
		}
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["root"] = engine.Root()
	fields["prune_limit"] = cfg.Cache.CachePruneTriggerLimit.String()
	fields["watch_config"] = cfg.Global.WatchConfig
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, engine, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 ANY_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ANY_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, engine *filecache.Engine, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Engine:     engine,
		Validator:  validate.New(engine.Options),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, engine)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
