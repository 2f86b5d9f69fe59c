// Package plugin discovers model plugins on disk and feeds them to a
// registry.
//
// A plugin source unit is one YAML file in the model directory. Its version
// is the hex SHA-256 of the file's bytes, so an unchanged file always maps to
// the same version and any edit produces a new one. A file holds a list of
// model definitions:
//
//	models:
//	  - name: base
//	    abstract: true
//	    attachments: [profile.csv]
//	  - name: erosion
//	    extends: base
//	    shortName: erosion
//	    fullName: Soil Erosion
//	    parameters:
//	      - {name: rate, label: Erosion rate, unit: mm/yr, type: float}
//	    run:
//	      files:
//	        profile.csv: "rate\n{{ .rate }}\n"
//	    document: "Rate: << index .Params \"rate\" >>"
//
// Abstract definitions are never registered; concrete ones inherit unset
// fields from the definition they extend. Run templates use {{ }} and see the
// bound parameter values; document templates are LaTeX and use << >>.
//
// Loader scans once. Scanner re-runs the loader on an interval, optionally
// also on file system changes, until stopped.
package plugin
