package project

import "errors"

// Project errors.
var (
	// ErrModelNotFound indicates a model name that is not in the project.
	ErrModelNotFound = errors.New("model not found")

	// ErrModelExists indicates a model name that is already taken.
	ErrModelExists = errors.New("model already exists")

	// ErrBoneNotFound indicates a bone name that is not in the model.
	ErrBoneNotFound = errors.New("bone not found")

	// ErrMorphNotFound indicates a morph name that is not in the model.
	ErrMorphNotFound = errors.New("morph not found")

	// ErrMaterialIndex indicates a material index out of range.
	ErrMaterialIndex = errors.New("material index out of range")

	// ErrNotApplicable indicates a command whose expected prior state does
	// not match the document.
	ErrNotApplicable = errors.New("command not applicable")

	// ErrDiverged indicates a replayed record whose previous state does not
	// match the recovering document.
	ErrDiverged = errors.New("document diverged from command log")

	// ErrCheckpointMismatch indicates a snapshot that changed after its
	// command log was started.
	ErrCheckpointMismatch = errors.New("snapshot does not match checkpoint")
)
