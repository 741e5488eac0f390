// Package io reads batch requests and writes batch outputs.
//
// # Request Format
//
// A batch file is JSON5, so comments, trailing commas and unquoted keys
// are allowed:
//
//	{
//	  font: "goregular",
//	  machine: "ep133",
//	  defaults: {size_mm: 10, depth_mm: 0.8},
//	  keycaps: [
//	    {id: 1, text: "5"},
//	    {id: 2, text: "+", size_mm: 12},
//	    {id: "enter", text: "OK", offset_y_mm: -1}, // ids may be strings
//	  ],
//	}
//
// Unknown fields are rejected so typos surface as errors instead of being
// silently ignored.
//
// # Outputs
//
// [WriteArtifacts] writes each generated STL into a directory and
// [WriteReport] writes the batch summary (artifacts without their bytes,
// failures, warnings and statistics) as indented JSON.
package io
