package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"collaborative-canvas/internal/render"
	"collaborative-canvas/internal/syncclient"
)

var watchCmd = &cobra.Command{
	Use:   "watch <code>",
	Short: "Join a room and keep a PNG of the canvas up to date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		fontPath, _ := cmd.Flags().GetString("emoji-font")
		push, _ := cmd.Flags().GetBool("push")
		width, _ := cmd.Flags().GetInt("width")
		height, _ := cmd.Flags().GetInt("height")

		font, err := render.LoadEmojiFont(fontPath)
		if err != nil {
			return fmt.Errorf("load emoji font: %w", err)
		}

		// 1. 建立会话
		session := syncclient.NewSession(client, args[0], syncclient.Config{
			Width:       width,
			Height:      height,
			Font:        font,
			PushNotices: push,
		})
		defer session.Close()

		// 2. 每次变化后原子地重写输出文件
		session.OnChange(func() {
			var buf bytes.Buffer
			if err := session.WritePNG(&buf); err != nil {
				logrus.WithError(err).Warn("Failed to encode canvas")
				return
			}
			tmp := filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".tmp")
			if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
				logrus.WithError(err).Warn("Failed to write canvas")
				return
			}
			if err := os.Rename(tmp, out); err != nil {
				logrus.WithError(err).Warn("Failed to replace canvas file")
			}
			logrus.WithField("participants", len(session.Roster())).Debug("Canvas written")
		})

		// 3. 运行直到收到信号
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching room %s, writing %s (Ctrl-C to stop)\n", args[0], out)
		return session.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().String("out", "canvas.png", "output PNG file")
	watchCmd.Flags().String("emoji-font", "", "TTF font used to draw emoji strokes")
	watchCmd.Flags().Bool("push", true, "subscribe to push notices in addition to polling")
	watchCmd.Flags().Int("width", render.DefaultWidth, "canvas width")
	watchCmd.Flags().Int("height", render.DefaultHeight, "canvas height")
}
