// Package project holds the editable document of a model and motion editing
// session and the commands that change it.
//
// A Project owns a Document (camera, models, bone keyframes), an undo stack
// and, when recovery is enabled, a command log. Every change goes through a
// command built by one of the New…Command factories:
//
//	p := project.New(project.WithRecovery(log))
//	cmd, err := project.NewTransformBoneCommand(p, "miku", "head", pose)
//	if err != nil {
//		return err
//	}
//	if err := p.Execute(cmd); err != nil {
//		// A *history.PersistError means the edit stands but is not in
//		// the log.
//	}
//
// # Recovery
//
// Each pushed command appends one record to the log holding the state it
// wrote and the state it replaced. Recover rebuilds a document from a blank
// project, or from the snapshot named by a leading checkpoint record, by
// applying the records forward. Undo history is not restored.
//
// Save writes a YAML snapshot, truncates the log and starts it again with a
// checkpoint record, so the log only ever holds changes made after the last
// save.
package project
