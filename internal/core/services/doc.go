// Package services implements the driving port interfaces.
// Services contain the pipeline logic and orchestrate calls to driven
// ports (adapters): chunk generation, embedding builds and evaluation.
//
// Services are pure Go with no CGO.
package services
