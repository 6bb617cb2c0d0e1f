/*
Package session implements session management and progress persistence orchestration.

It provides high-level abstractions for handling concurrent access to learner sessions
across multiple replicas, integrating the live editor sessions of a replica with
distributed locking and long-term progress storage adapters.
*/
package session
