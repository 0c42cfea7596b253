package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/itchyny/gojq"
	"github.com/notdodo/goflat/v2"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/primait/nembo/pkg/template"
	"github.com/primait/nembo/tools/filesystem/files"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Query and export a compiled template",
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed(flagVerbose) {
			logger.SetVerboseLevel()
		}
		if cmd.Flags().Changed(flagDebug) {
			logger.SetDebugLevel()
		}

		raw, err := os.ReadFile(files.NormalizePath(templateFile))
		if err != nil {
			logger.Error("Error reading template", "err", err, "file", templateFile)
		}

		if queryExpr != "" {
			runQuery(raw, queryExpr)
			return
		}

		var tmpl template.Template
		if err := json.Unmarshal(raw, &tmpl); err != nil {
			logger.Error("Error parsing template", "err", err, "file", templateFile)
		}

		switch strings.ToLower(outputFormat) {
		case "flat":
			printFlat(&tmpl)
		case "csv":
			printCSV(&tmpl)
		default:
			fmt.Println(string(logger.PrettyJSON(&tmpl)))
		}
	},
}

func runQuery(raw []byte, expr string) {
	query, err := gojq.Parse(expr)
	if err != nil {
		logger.Error("Error parsing query", "err", err, "query", expr)
	}

	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		logger.Error("Error parsing template", "err", err)
	}

	iter := query.Run(document)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			logger.Error("Error evaluating query", "err", err)
		}
		fmt.Println(string(logger.PrettyJSON(v)))
	}
}

func printFlat(tmpl *template.Template) {
	for _, id := range sortedResourceIDs(tmpl) {
		jsonString, err := oj.Marshal(tmpl.Resources[id])
		if err != nil {
			logger.Error("Error marshalling resource", "err", err, "id", id)
		}
		flat, err := goflat.FlatJSON(string(jsonString), goflat.FlattenerConfig{
			Prefix:    "",
			Separator: ".",
			OmitNil:   true,
			OmitEmpty: true,
		})
		if err != nil {
			logger.Error("Error flattening resource", "err", err, "id", id)
		}

		flatObject := make(map[string]interface{})
		if err := oj.Unmarshal([]byte(flat), &flatObject); err != nil {
			logger.Error("Error reading flattened resource", "err", err, "id", id)
		}

		logger.PrintGreen(id)
		keys := make([]string, 0, len(flatObject))
		for key := range flatObject {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("    %s: %v\n", key, flatObject[key])
		}
	}
}

type resourceRow struct {
	LogicalID      string `csv:"logical_id"`
	Type           string `csv:"type"`
	DependsOn      string `csv:"depends_on"`
	DeletionPolicy string `csv:"deletion_policy"`
	Condition      string `csv:"condition"`
}

func printCSV(tmpl *template.Template) {
	rows := make([]resourceRow, 0, len(tmpl.Resources))
	for _, id := range sortedResourceIDs(tmpl) {
		res := tmpl.Resources[id]
		rows = append(rows, resourceRow{
			LogicalID:      id,
			Type:           res.Type,
			DependsOn:      strings.Join(res.DependsOn, " "),
			DeletionPolicy: res.DeletionPolicy,
			Condition:      res.Condition,
		})
	}

	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		logger.Error("Error exporting CSV", "err", err)
	}
	fmt.Print(out)
}

func sortedResourceIDs(tmpl *template.Template) []string {
	ids := make([]string, 0, len(tmpl.Resources))
	for id := range tmpl.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
