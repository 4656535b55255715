/*
Package main is the headless entry point for the execution core.

It wires one goal to completion: load config, stand up the Event Bus and
its four specialist agents (Planner, Executor, Memory, Monitor), run the
Orchestrator, and stream the result as NDJSON on stdout per the wire
protocol. There is no HTTP server here — a host process embeds the core
directly or drives it through this binary's stdout, per the CLI-framing
non-goal.
*/
package main
