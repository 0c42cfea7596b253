package cmd

import (
	"github.com/primait/nembo/pkg/io/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagVerbose     = "verbose"
	flagDebug       = "debug"
	flagManifest    = "manifest"
	flagOutputDir   = "output-dir"
	flagArtifactDir = "artifact-dir"
	flagRegion      = "region"
	flagTemplate    = "template"
	flagQuery       = "query"
	flagFormat      = "format"
)

var (
	logger       logging.LogManager
	manifestFile string
	outputDir    string
	artifactDir  string
	region       string
	templateFile string
	queryExpr    string
	outputFormat string
	rootCmd      = &cobra.Command{
		Use:   "nembo",
		Short: "A tool to compile serverless function definitions into CloudFormation templates",
	}
)

func init() {
	logger = logging.GetLogManager()
	rootCmd.PersistentFlags().BoolP(flagVerbose, "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolP(flagDebug, "d", false, "Debug output")

	packageCmd.PersistentFlags().StringVarP(&manifestFile, flagManifest, "m", "nembo.yml", "Service manifest to compile")
	packageCmd.PersistentFlags().StringVarP(&outputDir, flagOutputDir, "o", ".nembo", "Output folder where the compiled template will be saved")
	packageCmd.PersistentFlags().StringVarP(&artifactDir, flagArtifactDir, "a", ".nembo/artifacts", "Folder where resolved artifacts are stored")
	packageCmd.PersistentFlags().StringVarP(&region, flagRegion, "r", "", "AWS region used when fetching s3:// artifacts")

	inspectCmd.PersistentFlags().StringVarP(&templateFile, flagTemplate, "t", ".nembo/template.json", "Compiled template to inspect")
	inspectCmd.PersistentFlags().StringVarP(&queryExpr, flagQuery, "q", "", "gojq expression evaluated against the template")
	inspectCmd.PersistentFlags().StringVarP(&outputFormat, flagFormat, "f", "json", "Output format: json, flat or csv")

	viper.SetEnvPrefix("NEMBO")
	viper.AutomaticEnv()
	bindFlag(packageCmd, flagOutputDir)
	bindFlag(packageCmd, flagArtifactDir)
	bindFlag(packageCmd, flagRegion)
}

func bindFlag(cmd *cobra.Command, flag string) {
	if err := viper.BindPFlag(flag, cmd.PersistentFlags().Lookup(flag)); err != nil {
		logger.Error("Error binding flag", "err", err, "flag", flag)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Error executing command", "err", err)
	}
}
