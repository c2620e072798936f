package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alvarorichard/Gostream/internal/util"
	"github.com/alvarorichard/Gostream/internal/version"
)

func versionLine() string {
	return fmt.Sprintf("Gostream v%s (%s)", version.Version, strings.Join(version.Features(), ", "))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// version needs neither config nor client
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(out(cmd), util.TitleStyle.Render(versionLine()))
		},
	}
}
