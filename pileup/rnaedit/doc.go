// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package rnaedit profiles per-position base composition of aligned RNA-seq
reads against a reference, to find candidate RNA editing sites.

Analysis proceeds in three stages:

  - Profiling: for each reference position with qualifying coverage, a
    Scanner reduces the observed read bases to a PositionRecord (coverage,
    mean quality, base counts, substitutions, editing frequency, and the
    inferred transcript strand).  ScanParts partitions the requested regions,
    scans the parts in parallel, and emits records in region order.
  - Annotation: Merge joins an RNA table against a genomic (e.g. DNA-seq)
    table of the same layout, filling the g* columns of matching rows.
  - Aggregation: an Accumulator reduces one or more tables to the 12
    directed-substitution editing indices.

Tables are tab-separated with a fixed header (see Columns).  Undefined
values are written as "-", and base counts as "[a, c, g, t]".
*/
package rnaedit
