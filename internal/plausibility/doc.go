// Package plausibility scores detection tracks for physical plausibility.
//
// Track statistics are extracted per recurring object id, compared against
// kinematic constraints to produce a heuristic score with soft penalties, and
// optionally blended with a secondary score before a verdict is assigned.
package plausibility
