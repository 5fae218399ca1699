package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"hdlflow/flow"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the orchestration HTTP API",
	Long: `Serve exposes the project's designs over HTTP:

  POST /runs               run a flow, respond with the verdict
  GET  /backends           list registered backends
  GET  /backends/:id/parts list a backend's supported parts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := newLogger()

		project, err := flow.LoadProject(projectFile)
		if err != nil {
			return err
		}

		g := gin.Default()
		flow.NewHTTPHandler(l, project, newRegistry(), g)

		l.Info("serving orchestration API", "addr", serveAddr, "designs", project.DesignNames())
		return g.Run(serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&projectFile, "project", "p", "hdlflow.yaml", "project file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}
