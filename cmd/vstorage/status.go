package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/Elzor/vstorage/internal/vstorageproto"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query a running node's /status-equivalent RPC and print it as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStatus(cfg.RPCListen)
		},
	}
}

func runStatus(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr, grpc.WithInsecure(), grpc.WithBlock())
	if err != nil {
		return errors.Wrap(err, "vstorage status: dial")
	}
	defer conn.Close()

	client := vstorageproto.NewBlockApiClient(conn)
	resp, err := client.Status(ctx, &vstorageproto.StatusRequest{})
	if err != nil {
		return errors.Wrap(err, "vstorage status: rpc")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"status", resp.Status})
	table.Append([]string{"init_bytes", strconv.FormatInt(resp.InitBytes, 10)})
	table.Append([]string{"active_slots", strconv.Itoa(int(resp.ActiveSlots))})
	table.Append([]string{"gc_bytes", strconv.FormatInt(resp.GCBytes, 10)})
	table.Append([]string{"move_bytes", strconv.FormatInt(resp.MoveBytes, 10)})
	table.Append([]string{"objects", strconv.Itoa(int(resp.Objects))})
	table.Append([]string{"avail_bytes", strconv.FormatInt(resp.AvailBytes, 10)})
	table.Render()

	fmt.Fprintln(os.Stderr)
	return nil
}
