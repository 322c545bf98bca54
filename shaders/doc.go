// Package shaders maps named compute stages to their binding layouts.
//
// A layout is the ordered list of binding kinds a stage expects. The same
// order is used by the code that records dispatches and by the engine that
// validates and executes them, so it is the contract between the two.
//
// Shader source text is supplied by the caller through a Source. The CPU
// engine ignores it and runs a built-in kernel per stage name; GPU engines
// compile it. Watch reloads sources from disk when they change.
package shaders
