package cmd

import (
	"context"
	"time"

	"github.com/primait/nembo/pkg/artifact"
	"github.com/primait/nembo/pkg/compiler"
	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/filesystem/files"
	"github.com/primait/nembo/tools/yamler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Compile the service manifest into a CloudFormation template",
	Run: func(cmd *cobra.Command, args []string) {
		startTime := time.Now()
		if cmd.Flags().Changed(flagVerbose) {
			logger.SetVerboseLevel()
		}
		if cmd.Flags().Changed(flagDebug) {
			logger.SetDebugLevel()
		}

		manifest, err := yamler.GetManifest(manifestFile)
		if err != nil {
			logger.Error("Error loading manifest", "err", err)
		}

		tmpl, err := compileManifest(cmd.Context(), manifest)
		if err != nil {
			logger.Error("Error compiling manifest", "err", err, "service", manifest.Service)
		}

		dir := viper.GetString(flagOutputDir)
		if err := files.PrettyJSONToFile(dir, "template.json", tmpl); err != nil {
			logger.Error("Error writing template", "err", err)
		}
		logger.PrintGreen("Compiled " + manifest.Service + " into " + dir + "/template.json")
		logger.Info("Execution Time", "seconds", time.Since(startTime))
	},
}

func compileManifest(ctx context.Context, manifest *yamler.Manifest) (*template.Template, error) {
	resolver := artifact.NewResolver(viper.GetString(flagArtifactDir), viper.GetString(flagRegion))
	if err := resolver.ResolveAll(ctx, manifest); err != nil {
		return nil, err
	}

	tmpl := template.New()
	tmpl.Description = "The CloudFormation template for " + manifest.Service

	comp, err := compiler.New(manifest.Service, manifest.Provider, tmpl)
	if err != nil {
		return nil, err
	}
	if err := comp.CompileLayers(manifest.Layers); err != nil {
		return nil, err
	}
	if err := comp.Compile(manifest.Functions); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func init() {
	rootCmd.AddCommand(packageCmd)
}
