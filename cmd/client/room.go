package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"collaborative-canvas/internal/domain"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and print its code",
	RunE: func(cmd *cobra.Command, args []string) error {
		var isPublic, allowDrawing *bool
		if cmd.Flags().Changed("public") {
			v, _ := cmd.Flags().GetBool("public")
			isPublic = &v
		}
		if cmd.Flags().Changed("drawing") {
			v, _ := cmd.Flags().GetBool("drawing")
			allowDrawing = &v
		}
		room, err := client.CreateRoom(cmd.Context(), isPublic, allowDrawing)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), room.Code)
		return nil
	},
}

var drawCmd = &cobra.Command{
	Use:   "draw <code> <tool> <json-data>",
	Short: "Append one stroke to a room",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool := domain.Tool(args[1])
		data := json.RawMessage(args[2])
		if err := domain.ValidatePayload(tool, data); err != nil {
			return err
		}
		event, err := client.Append(cmd.Context(), args[0], tool, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", event.ID, event.Timestamp.Format(time.RFC3339Nano))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <code>",
	Short: "Clear a room's canvas (creator only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clearedAt, err := client.Clear(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared at %s\n", clearedAt)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <code>",
	Short: "Download the server-rendered preview PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		png, err := client.Preview(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return os.WriteFile(out, png, 0o644)
	},
}

func init() {
	createCmd.Flags().Bool("public", true, "make the room public")
	createCmd.Flags().Bool("drawing", true, "allow participants to draw")
	previewCmd.Flags().String("out", "preview.png", "output file")
}
