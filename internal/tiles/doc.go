// Package tiles converts between WGS84 coordinates and slippy-map tile indices.
//
// Tiles follow the XYZ convention used by most web imagery services: at zoom z
// the world is a 2^z by 2^z grid of Web-Mercator tiles, X grows eastward from the
// antimeridian and Y grows southward from the northern edge of the projection.
//
// # Coordinate Order
//
// Latitude is always passed before longitude in this package's function
// signatures, matching how regions are usually written down. Geometry handed to
// the rest of the program (orb.Bound, orb.Point) is lon/lat, as GeoJSON requires.
//
// # Supported Range
//
// Web Mercator is undefined at the poles, so latitudes must stay within
// ±MaxLatitude. Zoom levels run from 0 to MaxZoom inclusive.
package tiles
