/*
Package domain contains the core types shared by every part of mqlua.

It is kept free of interpreter and transport dependencies so that values,
events and errors can be reasoned about (and tested) on their own.

# Key Entities

  - Value: a tagged variant {Nil, Bool, Int, Float, String, Table, Unsupported} used to
    move data between two Interpreter States without sharing memory.
  - Event: the housekeeping tags NodeStarting and NodeTerminated.
  - NodeID: the informational identifier returned when a node is created.
  - LoadError, MarshalTypeError, RecursionLimitError: structured spawn-time errors.
*/
package domain
