// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"pai-semantic-go/internal/app"
	"pai-semantic-go/internal/config"
	"pai-semantic-go/internal/handler"
	"pai-semantic-go/pkg/log"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 组装组件并恢复持久化状态
	application, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatalf("组件初始化失败: %v", err)
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Init(rootCtx); err != nil {
		log.Fatalf("加载索引状态失败: %v", err)
	}

	// 4. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: handler.NewRouter(application),
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止后台队列并关闭 Redis、MySQL 等连接
	cancel()
	if err := application.Close(); err != nil {
		log.Errorf("关闭组件失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
