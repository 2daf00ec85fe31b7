package main

import (
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-analyzer/internal/api"
	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/media"
)

type capabilitiesOutput struct {
	Capabilities []string             `json:"capabilities"`
	Roster       map[string]bool      `json:"roster"`
	Tools        []media.ToolStatus   `json:"tools"`
	Sidecar      *api.SidecarResponse `json:"sidecar"`
}

func newCapabilitiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Probe this host and print the capability roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := ctx.logger(cmd.ErrOrStderr())
			a, err := ctx.newAnalyzer(cmd.Context(), logger, nil, cliSidecarWait)
			if err != nil {
				return err
			}

			roster := make(map[string]bool)
			for _, n := range capability.All() {
				roster[string(n)] = a.runtime.Caps.Has(n)
			}

			out := capabilitiesOutput{
				Capabilities: a.processor.CapabilitiesAvailable(),
				Roster:       roster,
				Tools:        a.runtime.Tools,
				Sidecar:      api.SidecarToResponse(nil),
			}
			if a.runtime.Readiness != nil {
				out.Sidecar = api.SidecarToResponse(a.runtime.Readiness.Peek())
			}
			return writeJSON(cmd, out)
		},
	}
}
