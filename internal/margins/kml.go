package margins

import (
	"image/color"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	kml "github.com/twpayne/go-kml/v3"

	"github.com/aldrones/groundrisk/internal/geo"
)

// layerStyle carries the fixed KML palette for a layer. The colors are
// cosmetic and owned by this export step, not by the generator.
type layerStyle struct {
	fill    color.RGBA
	outline color.RGBA
	width   float64
}

var kmlStyles = map[Layer]layerStyle{
	FlightGeography:   {fill: color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0x33}, outline: color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff}, width: 2},
	ContingencyVolume: {fill: color.RGBA{R: 0xff, G: 0xff, B: 0x00, A: 0x1a}, outline: color.RGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}, width: 2},
	GroundRiskBuffer:  {fill: color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0x1a}, outline: color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}, width: 2},
	AdjacentArea:      {fill: color.RGBA{R: 0x00, G: 0x00, B: 0xff, A: 0x00}, outline: color.RGBA{R: 0x00, G: 0x00, B: 0xff, A: 0xff}, width: 1},
}

// WriteKML writes the layer set as a styled KML folder, one placemark per
// simple polygon, in geographic coordinates.
func WriteKML(w io.Writer, ls *LayerSet) error {
	folder := kml.Folder(kml.Name("Safety Margins"))

	for _, layer := range Layers() {
		g := ls.Get(layer)
		if g == nil {
			continue
		}
		style := kmlStyles[layer]

		for _, poly := range geo.DecomposePolygons(g) {
			t, err := geo.GeomFromGeos(poly)
			if err != nil {
				return err
			}
			gp, ok := t.(*geom.Polygon)
			if !ok {
				continue
			}

			folder.Add(kml.Placemark(
				kml.Name(string(layer)),
				kml.Style(
					kml.PolyStyle(
						kml.Color(style.fill),
						kml.Fill(true),
					),
					kml.LineStyle(
						kml.Color(style.outline),
						kml.Width(style.width),
					),
				),
				polygonElement(gp),
			))
		}
	}

	if err := kml.KML(folder).WriteIndent(w, "", "  "); err != nil {
		return eris.Wrap(err, "margins: write KML")
	}
	return nil
}

// polygonElement converts a go-geom polygon to a KML polygon element.
func polygonElement(p *geom.Polygon) kml.Element {
	children := make([]kml.Element, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := kml.LinearRing(kml.Coordinates(ringCoordinates(p.LinearRing(i))...))
		if i == 0 {
			children = append(children, kml.OuterBoundaryIs(ring))
		} else {
			children = append(children, kml.InnerBoundaryIs(ring))
		}
	}
	return kml.Polygon(children...)
}

func ringCoordinates(ring *geom.LinearRing) []kml.Coordinate {
	flat := ring.FlatCoords()
	stride := ring.Stride()
	coords := make([]kml.Coordinate, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		coords = append(coords, kml.Coordinate{Lon: flat[i], Lat: flat[i+1]})
	}
	return coords
}
