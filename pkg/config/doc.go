// Package config provides the Configuration that drives one CSV mapping run.
//
// # Key Features
//
// - Configuration: CSV dialect, number format, buffer sizes and concurrency
// - Char: single character settings that read naturally from YAML and JSON
// - Environment variable substitution with ${VAR_NAME} syntax
// - Automatic defaults and eager validation
//
// # Usage
//
// ## Defaults
//
//	cfg := config.NewConfiguration()
//	cfg.Delimiter = ';'
//	if err := cfg.SetDecimalPoint(','); err != nil {
//		log.Fatal(err)
//	}
//
// ## Loading From YAML
//
//	cfg, err := config.LoadConfiguration("csv.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	# csv.yaml
//	delimiter: ";"
//	comment: "#"
//	decimal_point: ","
//	encoding: ${CSV_ENCODING}
//	factory_threads: 4
//
// # Number Format
//
// The decimal point and the thousands separator are a pair: the decimal point
// is either '.' or ',' and the thousands separator is always the other one.
// ThousandsChar derives it, so the two can never disagree.
package config
