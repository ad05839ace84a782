// ABOUTME: Audio body codec package implementing PCM and UNICAM coding
// ABOUTME: Provides the Codec interface and the shared URTP header fill
// Package codec implements the two URTP body coding paths: plain 16-bit
// big-endian PCM, and UNICAM block-companded sub-band coding at 8 or 10
// coded bits per sample.
//
// A Codec is allocation-free once constructed: all scratch space is
// pre-sized at New time so Encode can run from a DMA-bottom-half-equivalent
// context without triggering the garbage collector.
package codec
