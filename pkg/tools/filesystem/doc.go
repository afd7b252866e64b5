// Package filesystem exposes the working directory sandbox to the model.
//
// Every tool goes through workspace.Sandbox, so paths are confined to the
// chosen root and failures come back as workspace.ResourceError.
package filesystem
