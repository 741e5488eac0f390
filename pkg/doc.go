// Package pkg holds the libraries behind keyforge, a generator of
// 3D-printable keycaps with engraved or embossed legends.
//
// # Overview
//
// The packages form a pipeline from a font and a short legend to a
// watertight STL file:
//
//	font bytes            [fonts], [fontstore]
//	     ↓
//	[atlas]               parsed glyph outlines, cached by content hash
//	     ↓
//	[layout]              legend placed and scaled on the keycap face
//	     ↓
//	[planar], [tessellate] contour classification and triangulation
//	     ↓
//	[template], [solid]   base keycap, legend cut into or raised from its face
//	     ↓
//	[mesh]                validation and repair
//	     ↓
//	[stl]                 binary STL
//
// [pipeline] runs that chain for a batch of keycaps in parallel with
// per-keycap timeouts and failure isolation; [archive] packs the result
// into a ZIP with a JSON report. [cache], [config], [server] and
// [preview] provide caching, settings, the HTTP API and PNG previews.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, log.Default())
//	res, err := runner.Execute(ctx, pipeline.Request{
//	    Keycaps: []pipeline.KeycapSpec{{ID: "1", Text: "5"}},
//	})
//	if err != nil {
//	    return err
//	}
//	return archive.Write(w, res, archive.Options{Report: true})
package pkg
