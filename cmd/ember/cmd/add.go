package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	ember "github.com/emberdb/ember"
	"github.com/emberdb/ember/internal/errkind"
)

// docInput is the on-disk JSON shape accepted by `ember add`: one object
// per document, with raw JSON values coerced to DataValue by kind.
type docInput struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

func newAddCmd() *cobra.Command {
	var file string
	var upsert bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add documents from a JSON file (array of {id, fields})",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader
			if file == "" || file == "-" {
				r = cmd.InOrStdin()
			} else {
				f, err := os.Open(file)
				if err != nil {
					return errkind.Wrap(errkind.Io, "cmd.add", err)
				}
				defer f.Close()
				r = f
			}

			var inputs []docInput
			if err := json.NewDecoder(r).Decode(&inputs); err != nil {
				return errkind.Wrap(errkind.InvalidArgument, "cmd.add", err)
			}

			e, err := ember.Open(dataDir)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, in := range inputs {
				doc := ember.NewDocument(in.ID)
				for field, raw := range in.Fields {
					v, err := dataValueFromJSON(raw)
					if err != nil {
						return err
					}
					doc.Set(field, v)
				}
				var id ember.DocID
				if upsert {
					id, err = e.Upsert(doc)
				} else {
					id, err = e.AddDocument(doc)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", in.ID, uint64(id))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "JSON file to read documents from (\"-\" for stdin)")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "replace any prior document sharing the same id")
	return cmd
}

// dataValueFromJSON maps a decoded JSON value to a DataValue by its Go
// kind: string, float64, bool, []interface{} of numbers (vector), or nil.
func dataValueFromJSON(raw interface{}) (ember.DataValue, error) {
	switch t := raw.(type) {
	case nil:
		return ember.NullValue(), nil
	case string:
		return ember.Text(t), nil
	case bool:
		return ember.Bool(t), nil
	case float64:
		return ember.Float64(t), nil
	case []interface{}:
		vec := make([]float32, len(t))
		for i, e := range t {
			f, ok := e.(float64)
			if !ok {
				return ember.NullValue(), errkind.New(errkind.InvalidArgument, "cmd.add", "vector field values must be numbers")
			}
			vec[i] = float32(f)
		}
		return ember.VectorValue(vec), nil
	default:
		return ember.NullValue(), errkind.New(errkind.InvalidArgument, "cmd.add", fmt.Sprintf("unsupported field value type %T", raw))
	}
}
