package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/client"
	"github.com/danmuck/provectl/internal/engine/groth"
	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/network"
	"github.com/danmuck/provectl/internal/program"
	"github.com/danmuck/provectl/internal/worker"
)

func serveCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker with its control and status listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServiceConfig(configPath)
			if err != nil {
				return err
			}
			svc, err := worker.NewService(cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a toml config file")
	return cmd
}

// localDispatcher runs requests in-process against the gnark engine and an
// in-memory network seeded with the given import files.
func localDispatcher(importFiles []string, prove bool) (*worker.Dispatcher, error) {
	mem := network.NewMemory()
	for _, path := range importFiles {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read import %s: %w", path, err)
		}
		p, err := program.Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		mem.AddProgram(p.ID(), p.Source())
	}
	return worker.NewDispatcher(groth.New(nil), mem, worker.DispatcherConfig{
		WorkerID:    "provectl.exec",
		DefaultHost: worker.DefaultHost,
		ProveLocal:  prove,
	})
}

func execCommand() *cobra.Command {
	var (
		programPath string
		function    string
		inputs      []string
		key         string
		imports     []string
		noProve     bool
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a program function locally and verify the proof",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := os.ReadFile(programPath)
			if err != nil {
				return err
			}
			if key == "" {
				k, err := account.Generate(nil)
				if err != nil {
					return err
				}
				key = k.String()
			}
			d, err := localDispatcher(imports, !noProve)
			if err != nil {
				return err
			}
			resp := d.Dispatch(cmd.Context(), uuid.NewString(), message.LocalExecute{
				Program:    string(src),
				Function:   function,
				Inputs:     inputs,
				PrivateKey: key,
			})
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&programPath, "program", "p", "", "program source file")
	cmd.Flags().StringVarP(&function, "function", "f", "", "function to execute")
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "typed input literal, repeatable (e.g. 5u32)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "private key (generated when empty)")
	cmd.Flags().StringArrayVar(&imports, "import", nil, "imported program source file, repeatable")
	cmd.Flags().BoolVar(&noProve, "no-prove", false, "evaluate without producing a proof")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

func estimateDeployCommand() *cobra.Command {
	var (
		programPath string
		imports     []string
	)
	cmd := &cobra.Command{
		Use:   "estimate-deploy",
		Short: "Estimate the deployment fee of a program",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := os.ReadFile(programPath)
			if err != nil {
				return err
			}
			d, err := localDispatcher(imports, false)
			if err != nil {
				return err
			}
			resp := d.Dispatch(cmd.Context(), uuid.NewString(), message.EstimateDeploymentFee{Program: string(src)})
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&programPath, "program", "p", "", "program source file")
	cmd.Flags().StringArrayVar(&imports, "import", nil, "imported program source file, repeatable")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func keygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an account private key and address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := account.Generate(nil)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), message.PrivateKeyResult{
				PrivateKey: k.String(),
				Address:    k.Address().String(),
			})
		},
	}
}

func callCommand() *cobra.Command {
	var (
		addr    string
		tag     string
		fields  []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Send one request to a running worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFields(fields)
			if err != nil {
				return err
			}
			req, err := buildRequest(tag, f)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := client.Dial(ctx, client.Config{Address: addr})
			if err != nil {
				return err
			}
			defer c.Close()
			resp, err := c.Call(ctx, req)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:7040", "worker control address")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "request tag (e.g. LOCAL_EXECUTE)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "request field key=value, repeatable")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall call timeout")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

// printResponse writes resp as JSON and turns a failure into a command error.
func printResponse(w io.Writer, resp message.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(renderResponse(resp)); err != nil {
		return err
	}
	if f, ok := resp.(message.Failure); ok {
		return fmt.Errorf("%s", f.Message)
	}
	return nil
}
