package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reitti/registry"
)

var servicesDiscover bool

// servicesCmd lists the capability registry
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List configured capability services",
	Long: `Services prints every configured capability service and its
declared operations. With --discover, each service is probed for its
advertised capabilities and drift against the configuration is
reported.`,
	Example: `  reitti services
  reitti services --discover`,
	RunE: runServices,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.Flags().BoolVar(&servicesDiscover, "discover", false, "Probe each service for advertised capabilities")
}

func runServices(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx, "")
	if err != nil {
		return err
	}
	defer p.Close()

	if !servicesDiscover {
		for _, svc := range p.registry.Services() {
			fmt.Printf("%-16s %s\n", svc.Name, svc.Endpoint)
			fmt.Printf("%-16s capabilities: %s\n", "", strings.Join(svc.Capabilities, ", "))
		}
		return nil
	}

	discoverer := registry.NewDiscoverer(p.registry, 10*time.Second)
	for _, result := range discoverer.Discover(ctx) {
		status := "online"
		if !result.Online {
			status = fmt.Sprintf("offline (%s)", result.Error)
		}
		fmt.Printf("%-16s %s\n", result.Service, status)
		if result.Online && len(result.Missing) > 0 {
			fmt.Printf("%-16s declared but not advertised: %s\n", "",
				strings.Join(result.Missing, ", "))
		}
	}
	return nil
}
