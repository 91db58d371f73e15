// Command generate-schema writes the BigQuery schema of the ndt7 archival
// record, for datatype autoloading.
package main

import (
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"

	"github.com/netmeasure/ndt7-client/pkg/results"
)

var ndt7Schema string

func init() {
	flag.StringVar(&ndt7Schema, "ndt7", "/var/spool/datatypes/ndt7.json", "filename to write ndt7 schema")
}

func main() {
	flag.Parse()
	// Generate and save the schema for autoloading.
	result := results.NDT7Result{}
	sch, err := bigquery.InferSchema(result)
	rtx.Must(err, "failed to generate ndt7 schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal ndt7 schema")
	err = os.WriteFile(ndt7Schema, b, 0o644)
	rtx.Must(err, "failed to write ndt7 schema")
}
